package jwtx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// JWKSFetcher loads the current key set from the core.
type JWKSFetcher func(ctx context.Context) (JWKS, error)

// RemoteKeySet is the SDK's view of the core's signing keys. Unknown kids
// trigger a refetch, throttled to one per MinRefreshInterval so a flood of
// forged kids cannot hammer the core.
type RemoteKeySet struct {
	fetch   JWKSFetcher
	keys    *KeySet
	limiter *rate.Limiter

	mu        sync.Mutex
	fetchedAt time.Time
	maxAge    time.Duration
}

// RemoteKeySetOptions tunes refresh behaviour.
type RemoteKeySetOptions struct {
	// MinRefreshInterval defaults to 30s.
	MinRefreshInterval time.Duration
	// MaxAge forces a refetch of a set older than this. Defaults to 24h.
	MaxAge time.Duration
}

// NewRemoteKeySet returns a key set that fills itself lazily through fetch.
func NewRemoteKeySet(fetch JWKSFetcher, opts RemoteKeySetOptions) *RemoteKeySet {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = 30 * time.Second
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	return &RemoteKeySet{
		fetch:   fetch,
		keys:    NewKeySet(),
		limiter: rate.NewLimiter(rate.Every(opts.MinRefreshInterval), 1),
		maxAge:  opts.MaxAge,
	}
}

// Key implements KeyLookup.
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	if r.stale() {
		if err := r.Refresh(ctx); err != nil && !r.keys.IsReady() {
			return nil, err
		}
	}

	key, err := r.keys.Get(kid)
	if err == nil {
		return key, nil
	}

	if !r.limiter.Allow() {
		return nil, err
	}
	if ferr := r.refresh(ctx); ferr != nil {
		return nil, ferr
	}
	return r.keys.Get(kid)
}

// Refresh refetches the JWKS unconditionally.
func (r *RemoteKeySet) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

func (r *RemoteKeySet) refresh(ctx context.Context) error {
	jwks, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("jwtx: fetch jwks: %w", err)
	}
	if err := r.keys.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("jwtx: load jwks: %w", err)
	}

	r.mu.Lock()
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *RemoteKeySet) stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchedAt.IsZero() || time.Since(r.fetchedAt) > r.maxAge
}

// PublicJWKS returns the last fetched set.
func (r *RemoteKeySet) PublicJWKS() JWKS {
	return r.keys.PublicJWKS()
}
