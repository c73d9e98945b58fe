// Command demo is an application backend protected by the session SDK. It
// talks to a core and exposes the recipes' routes under /auth.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

type config struct {
	Addr          string
	CoreURLs      []string
	APIKey        string
	APIDomain     string
	WebsiteDomain string
	LogLevel      string
}

// loadConfig reads DEMO_* environment variables.
func loadConfig() config {
	v := viper.New()
	v.SetEnvPrefix("DEMO")
	v.AutomaticEnv()

	v.SetDefault("ADDR", ":8080")
	v.SetDefault("CORE_URL", "http://localhost:3567")
	v.SetDefault("API_DOMAIN", "http://localhost:8080")
	v.SetDefault("WEBSITE_DOMAIN", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")

	return config{
		Addr:          v.GetString("ADDR"),
		CoreURLs:      strings.Split(v.GetString("CORE_URL"), ","),
		APIKey:        v.GetString("API_KEY"),
		APIDomain:     v.GetString("API_DOMAIN"),
		WebsiteDomain: v.GetString("WEBSITE_DOMAIN"),
		LogLevel:      v.GetString("LOG_LEVEL"),
	}
}

func main() {
	cfg := loadConfig()
	logger := slogx.New(slogx.Config{Service: "demo", Level: cfg.LogLevel, Format: "text"})

	users := newDirectory()
	app, err := newApp(cfg, querier.Config{Hosts: cfg.CoreURLs, APIKey: cfg.APIKey}, users)
	if err != nil {
		log.Fatalf("failed to initialise sdk: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes(app, users),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("demo listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}
