// Command core runs the reference authentication core the SDK talks to.
package main

import (
	"log"

	"github.com/aussiebroadwan/tabsession/internal/core/app"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize core: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("core error: %v", err)
	}
}
