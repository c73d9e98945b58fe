package core_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

// TestRateLimitRefreshEndpoint uses the production limits: refresh is the
// strict bucket, with a burst of 10.
func TestRateLimitRefreshEndpoint(t *testing.T) {
	baseURL := setupCoreContainer(t, nil)
	q := coreQuerier(t, baseURL)
	ctx := context.Background()

	var lastErr error
	for i := range 11 {
		var out map[string]any
		err := q.SendPostRequest(ctx, "/recipe/session/refresh", map[string]any{"refreshToken": "bogus"}, &out)
		if i < 10 {
			require.NoError(t, err, "request %d should not be limited", i+1)
			require.Equal(t, "UNAUTHORISED", out["status"])
			continue
		}
		lastErr = err
	}

	var coreErr *querier.CoreError
	require.True(t, errors.As(lastErr, &coreErr), "expected a core error, got %v", lastErr)
	require.Equal(t, http.StatusTooManyRequests, coreErr.StatusCodeFromCore)
}
