package framework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// maxBodyBytes caps JSON bodies read through GetJSONBody.
const maxBodyBytes = 1 << 20

// HTTPRequest adapts *http.Request.
type HTTPRequest struct {
	r *http.Request

	bodyOnce sync.Once
	body     map[string]any
	bodyErr  error
}

// NewRequest wraps r.
func NewRequest(r *http.Request) *HTTPRequest {
	return &HTTPRequest{r: r}
}

func (h *HTTPRequest) Context() context.Context { return h.r.Context() }

func (h *HTTPRequest) GetHeaderValue(key string) string { return h.r.Header.Get(key) }

func (h *HTTPRequest) GetCookieValue(name string) string {
	c, err := h.r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *HTTPRequest) GetKeyValueFromQuery(key string) string { return h.r.URL.Query().Get(key) }

func (h *HTTPRequest) GetJSONBody() (map[string]any, error) {
	h.bodyOnce.Do(func() {
		h.body = map[string]any{}
		if h.r.Body == nil {
			return
		}
		err := json.NewDecoder(io.LimitReader(h.r.Body, maxBodyBytes)).Decode(&h.body)
		if err != nil && !errors.Is(err, io.EOF) {
			h.bodyErr = fmt.Errorf("framework: decode json body: %w", err)
		}
	})
	return h.body, h.bodyErr
}

func (h *HTTPRequest) GetMethod() string { return h.r.Method }

func (h *HTTPRequest) GetOriginalURL() string { return h.r.URL.RequestURI() }

// Original returns the *http.Request.
func (h *HTTPRequest) Original() any { return h.r }

// HTTPResponse adapts http.ResponseWriter. Headers and status are buffered
// until SendJSONResponse so handlers can set them in any order.
type HTTPResponse struct {
	w      http.ResponseWriter
	status int
	sent   bool
}

// NewResponse wraps w.
func NewResponse(w http.ResponseWriter) *HTTPResponse {
	return &HTTPResponse{w: w, status: http.StatusOK}
}

func (h *HTTPResponse) SetHeader(key, value string, allowDuplicate bool) {
	if allowDuplicate {
		h.w.Header().Add(key, value)
		return
	}
	h.w.Header().Set(key, value)
}

func (h *HTTPResponse) RemoveHeader(key string) { h.w.Header().Del(key) }

func (h *HTTPResponse) SetCookie(c Cookie) {
	http.SetCookie(h.w, &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	})
}

func (h *HTTPResponse) SetStatusCode(code int) { h.status = code }

// StatusCode is the status that will be or was written.
func (h *HTTPResponse) StatusCode() int { return h.status }

func (h *HTTPResponse) SendJSONResponse(v any) error {
	if h.sent {
		return errors.New("framework: response already sent")
	}
	h.sent = true
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(h.status)
	return json.NewEncoder(h.w).Encode(v)
}

func (h *HTTPResponse) ResponseSent() bool { return h.sent }

// Original returns the http.ResponseWriter.
func (h *HTTPResponse) Original() any { return h.w }
