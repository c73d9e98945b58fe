package sdk

// ResetPostInitForTests reopens the post-init list. Only test binaries can
// reach it.
func (a *App) ResetPostInitForTests() { a.postInit.reset() }
