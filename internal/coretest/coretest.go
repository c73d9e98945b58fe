// Package coretest runs the reference core in-process, backed by a sqlite
// file in the test's temp dir.
package coretest

import (
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/internal/core/app"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

// APIKey is the key every test core accepts.
const APIKey = "coretest-api-key"

// Clock is a settable clock shared by the core and the SDK under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Core is a running test core.
type Core struct {
	App    *app.Application
	Server *httptest.Server
	Clock  *Clock
}

// Option adjusts the core config before start.
type Option func(*app.Config)

// WithAccessTokenTTL sets the access token lifetime.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(c *app.Config) { c.AccessTokenTTL = d }
}

// WithRefreshTokenTTL sets the refresh token lifetime.
func WithRefreshTokenTTL(d time.Duration) Option {
	return func(c *app.Config) { c.RefreshTokenTTL = d }
}

// Start runs a core until the test ends.
func Start(t testing.TB, opts ...Option) *Core {
	t.Helper()

	clock := NewClock(time.Now().Truncate(time.Second))
	cfg := app.Config{
		APIKeys:              []string{APIKey},
		DatabaseDriver:       "sqlite",
		DatabaseFile:         filepath.Join(t.TempDir(), "core.db"),
		Algorithm:            "EdDSA",
		NumKeys:              2,
		KeyStorageMode:       "ephemeral",
		KeyGracePeriod:       24 * time.Hour,
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      24 * time.Hour,
		EmailTokenTTL:        time.Hour,
		TOTPIssuer:           "coretest",
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
		Clock:                clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close()
	})

	return &Core{App: a, Server: srv, Clock: clock}
}

// QuerierConfig points an SDK at the core.
func (c *Core) QuerierConfig() querier.Config {
	return querier.Config{Hosts: []string{c.Server.URL}, APIKey: APIKey}
}

// Querier returns a querier for the core.
func (c *Core) Querier(t testing.TB) querier.Querier {
	t.Helper()
	q, err := querier.NewHTTPQuerier(c.QuerierConfig())
	require.NoError(t, err)
	return q
}
