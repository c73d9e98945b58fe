package querier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

const tracerName = "github.com/aussiebroadwan/tabsession/pkg/querier"

// ErrNoHosts is returned by NewHTTPQuerier without any core hosts.
var ErrNoHosts = errors.New("querier: no core hosts configured")

// Config configures an HTTPQuerier.
type Config struct {
	// Hosts are base URLs of core instances, used round robin.
	Hosts []string
	// APIKey is sent as the api-key header when set.
	APIKey string
	// HTTPClient defaults to a client without a timeout; deadlines come from
	// the caller's context.
	HTTPClient *http.Client
	// Interceptor may rewrite each outgoing request.
	Interceptor func(*http.Request) *http.Request
}

// HTTPQuerier talks to the core over HTTP.
type HTTPQuerier struct {
	hosts       []string
	apiKey      string
	client      *http.Client
	interceptor func(*http.Request) *http.Request
	tracer      trace.Tracer
	next        atomic.Uint64
}

// NewHTTPQuerier validates cfg and returns a querier.
func NewHTTPQuerier(cfg Config) (*HTTPQuerier, error) {
	hosts := make([]string, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		if _, err := url.ParseRequestURI(h); err != nil {
			return nil, fmt.Errorf("querier: invalid host %q: %w", h, err)
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPQuerier{
		hosts:       hosts,
		apiKey:      cfg.APIKey,
		client:      client,
		interceptor: cfg.Interceptor,
		tracer:      otel.Tracer(tracerName),
	}, nil
}

func (q *HTTPQuerier) SendGetRequest(ctx context.Context, path string, query url.Values, out any) error {
	return q.send(ctx, http.MethodGet, path, query, nil, out)
}

func (q *HTTPQuerier) SendPostRequest(ctx context.Context, path string, body, out any) error {
	return q.send(ctx, http.MethodPost, path, nil, body, out)
}

func (q *HTTPQuerier) SendPutRequest(ctx context.Context, path string, body, out any) error {
	return q.send(ctx, http.MethodPut, path, nil, body, out)
}

func (q *HTTPQuerier) SendDeleteRequest(ctx context.Context, path string, query url.Values, out any) error {
	return q.send(ctx, http.MethodDelete, path, query, nil, out)
}

func (q *HTTPQuerier) send(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, span := q.tracer.Start(ctx, "core "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("core.path", path),
		),
	)
	defer span.End()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("querier: encode body: %w", err)
		}
		payload = b
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = len(q.hosts)
	}

	var lastErr error
	for range attempts {
		host := q.hosts[q.next.Add(1)%uint64(len(q.hosts))]
		status, err := q.do(ctx, method, host, path, query, payload, out)
		span.SetAttributes(attribute.String("core.host", host))
		if err == nil {
			span.SetAttributes(attribute.Int("http.status_code", status))
			return nil
		}

		lastErr = err
		var coreErr *CoreError
		if errors.As(err, &coreErr) || ctx.Err() != nil {
			break
		}
		slogx.FromContext(ctx).Warn("core request failed",
			"method", method, "path", path, "host", host, "err", err)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastErr
}

func (q *HTTPQuerier) do(ctx context.Context, method, host, path string, query url.Values, payload []byte, out any) (int, error) {
	target := host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("querier: create request: %w", err)
	}
	req.Header.Set("cdi-version", CDIVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	if q.interceptor != nil {
		req = q.interceptor(req)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("querier: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("querier: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &CoreError{
			StatusCodeFromCore:   resp.StatusCode,
			ErrorMessageFromCore: strings.TrimSpace(string(raw)),
		}
	}

	if out == nil || len(raw) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("querier: decode response: %w", err)
	}
	return resp.StatusCode, nil
}
