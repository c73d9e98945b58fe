// Package framework is the only surface the SDK touches on the host HTTP
// stack. The net/http adapter covers chi, the standard mux and anything else
// built on http.Handler.
package framework

import (
	"context"
	"net/http"
	"time"
)

// Request is the read side of an HTTP exchange.
type Request interface {
	Context() context.Context
	GetHeaderValue(key string) string
	GetCookieValue(name string) string
	GetKeyValueFromQuery(key string) string
	// GetJSONBody decodes the body once and caches it; an empty body yields
	// an empty map.
	GetJSONBody() (map[string]any, error)
	GetMethod() string
	GetOriginalURL() string
	Original() any
}

// Cookie is the framework neutral cookie the session recipe sets.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Response is the write side of an HTTP exchange.
type Response interface {
	SetHeader(key, value string, allowDuplicate bool)
	RemoveHeader(key string)
	SetCookie(c Cookie)
	SetStatusCode(code int)
	SendJSONResponse(v any) error
	// ResponseSent reports whether a body has already been written.
	ResponseSent() bool
	Original() any
}

// Handler serves an SDK route.
type Handler func(req Request, res Response) error
