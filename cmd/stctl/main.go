package main

import "github.com/aussiebroadwan/tabsession/cmd/stctl/cmd"

func main() {
	cmd.Execute()
}
