// Package querier is the SDK's RPC client for the authentication core. Every
// request and response body is JSON. Nothing is retried except GETs that fail
// at the transport level, which move on to the next host.
package querier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// CDIVersion is the core driver interface version sent with every request.
const CDIVersion = "5.1"

// DefaultTenantID is used when a tenant is not specified.
const DefaultTenantID = "public"

// Querier is the abstract client the recipes depend on. out is decoded from
// the JSON response and may be nil.
type Querier interface {
	SendGetRequest(ctx context.Context, path string, query url.Values, out any) error
	SendPostRequest(ctx context.Context, path string, body, out any) error
	SendPutRequest(ctx context.Context, path string, body, out any) error
	SendDeleteRequest(ctx context.Context, path string, query url.Values, out any) error
}

// CoreError is a non-2xx response from the core.
type CoreError struct {
	StatusCodeFromCore   int
	ErrorMessageFromCore string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("core responded with status %d: %s", e.StatusCodeFromCore, e.ErrorMessageFromCore)
}

// TenantPath prefixes path with the tenant id, e.g. /public/recipe/session.
func TenantPath(tenantID, path string) string {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	return "/" + url.PathEscape(tenantID) + "/" + strings.TrimPrefix(path, "/")
}
