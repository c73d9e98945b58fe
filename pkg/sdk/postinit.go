package sdk

import "sync"

// postInitList holds callbacks recipes register while they are constructed.
// It is drained once, in registration order, after every recipe exists and
// stays closed afterwards.
type postInitList struct {
	mu      sync.Mutex
	fns     []func() error
	drained bool
}

func (l *postInitList) add(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drained {
		return ErrPostInitClosed
	}
	l.fns = append(l.fns, fn)
	return nil
}

// drain runs every callback and closes the list. The first error stops it;
// the list is closed either way.
func (l *postInitList) drain() error {
	l.mu.Lock()
	fns := l.fns
	l.fns = nil
	l.drained = true
	l.mu.Unlock()

	for _, fn := range fns {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (l *postInitList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

func (l *postInitList) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = nil
	l.drained = false
}
