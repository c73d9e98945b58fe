package querier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/stretchr/testify/require"
)

func TestTenantPath(t *testing.T) {
	require.Equal(t, "/public/recipe/session", querier.TenantPath("", "/recipe/session"))
	require.Equal(t, "/acme/recipe/session", querier.TenantPath("acme", "recipe/session"))
}

func TestHTTPQuerier_SendsHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("api-key"))
		require.Equal(t, querier.CDIVersion, r.Header.Get("cdi-version"))
		require.Equal(t, "/public/recipe/session", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "echo": body["userId"]})
	}))
	defer srv.Close()

	q, err := querier.NewHTTPQuerier(querier.Config{Hosts: []string{srv.URL + "/"}, APIKey: "secret"})
	require.NoError(t, err)

	var out struct {
		Status string `json:"status"`
		Echo   string `json:"echo"`
	}
	err = q.SendPostRequest(context.Background(), "/public/recipe/session", map[string]string{"userId": "u1"}, &out)
	require.NoError(t, err)
	require.Equal(t, "OK", out.Status)
	require.Equal(t, "u1", out.Echo)
}

func TestHTTPQuerier_CoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	q, err := querier.NewHTTPQuerier(querier.Config{Hosts: []string{srv.URL}})
	require.NoError(t, err)

	err = q.SendDeleteRequest(context.Background(), "/x", url.Values{"a": {"b"}}, nil)
	var coreErr *querier.CoreError
	require.ErrorAs(t, err, &coreErr)
	require.Equal(t, http.StatusBadRequest, coreErr.StatusCodeFromCore)
	require.Equal(t, "bad input", coreErr.ErrorMessageFromCore)
}

func TestHTTPQuerier_GetFailsOverMutationsDoNot(t *testing.T) {
	var hits atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer good.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	q, err := querier.NewHTTPQuerier(querier.Config{Hosts: []string{deadURL, good.URL}})
	require.NoError(t, err)

	for range 4 {
		require.NoError(t, q.SendGetRequest(context.Background(), "/hello", nil, nil))
	}
	require.Equal(t, int32(4), hits.Load())

	failures := 0
	for range 4 {
		if err := q.SendPutRequest(context.Background(), "/recipe/session/data", map[string]any{}, nil); err != nil {
			failures++
		}
	}
	require.Equal(t, 2, failures, "mutations hitting the dead host are not retried")
	require.Equal(t, int32(6), hits.Load())
}

func TestHTTPQuerier_DeadlineFromContext(t *testing.T) {
	var hits atomic.Int32
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	q, err := querier.NewHTTPQuerier(querier.Config{Hosts: []string{slow.URL, slow.URL}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = q.SendGetRequest(ctx, "/hello", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), hits.Load(), "an expired context is not retried on the next host")
}

func TestNewHTTPQuerier_Validation(t *testing.T) {
	_, err := querier.NewHTTPQuerier(querier.Config{Hosts: []string{" ", ""}})
	require.ErrorIs(t, err, querier.ErrNoHosts)

	_, err = querier.NewHTTPQuerier(querier.Config{Hosts: []string{"not a url"}})
	require.Error(t, err)
}
