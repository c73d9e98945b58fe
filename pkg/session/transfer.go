package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
)

const (
	accessTokenCookieName  = "sAccessToken"
	refreshTokenCookieName = "sRefreshToken"

	accessTokenHeaderName  = "st-access-token"
	refreshTokenHeaderName = "st-refresh-token"
	frontTokenHeaderName   = "front-token"
	antiCsrfHeaderName     = "anti-csrf"
	authModeHeaderName     = "st-auth-mode"
	ridHeaderName          = "rid"
)

// The access token cookie outlives the token so an expired token still
// reaches the refresh endpoint.
const accessTokenCookieLifetime = 100 * 365 * 24 * time.Hour

// transferForCreate picks a concrete method for a new session.
func (c *normalisedConfig) transferForCreate(req framework.Request) TransferMethod {
	m := c.getTokenTransferMethod(req, true)
	if m != TransferAny {
		return m
	}
	if strings.EqualFold(req.GetHeaderValue(authModeHeaderName), string(TransferHeader)) {
		return TransferHeader
	}
	return TransferCookie
}

func bearerToken(req framework.Request) string {
	auth := req.GetHeaderValue("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// readToken looks for a token the way allowed permits, header first, and
// reports where it was found.
func readToken(req framework.Request, allowed TransferMethod, cookieName string) (string, TransferMethod) {
	if allowed == TransferHeader || allowed == TransferAny {
		if t := bearerToken(req); t != "" {
			return t, TransferHeader
		}
	}
	if allowed == TransferCookie || allowed == TransferAny {
		if t := req.GetCookieValue(cookieName); t != "" {
			return t, TransferCookie
		}
	}
	return "", allowed
}

// frontToken is what the browser side reads to learn the user and the
// access token expiry without seeing the token itself.
func frontToken(userID string, accessTokenExpiry int64, up claims.Payload) string {
	if up == nil {
		up = claims.Payload{}
	}
	b, _ := json.Marshal(map[string]any{"uid": userID, "ate": accessTokenExpiry, "up": up})
	return base64.StdEncoding.EncodeToString(b)
}

func exposeHeader(res framework.Response, name string) {
	res.SetHeader("Access-Control-Expose-Headers", name, true)
}

func (c *normalisedConfig) cookie(name, value, path string, expires time.Time) framework.Cookie {
	return framework.Cookie{
		Name:     name,
		Value:    value,
		Domain:   c.cookieDomain,
		Path:     path,
		Expires:  expires,
		Secure:   c.cookieSecure,
		HTTPOnly: true,
		SameSite: c.cookieSameSite,
	}
}

func (c *normalisedConfig) setFrontToken(res framework.Response, userID string, expiry int64, up claims.Payload) {
	res.SetHeader(frontTokenHeaderName, frontToken(userID, expiry, up), false)
	exposeHeader(res, frontTokenHeaderName)
}

func (c *normalisedConfig) setAccessToken(res framework.Response, method TransferMethod, token string) {
	if method == TransferCookie {
		res.SetCookie(c.cookie(accessTokenCookieName, token, "/", c.now().Add(accessTokenCookieLifetime)))
		if !c.exposeAccessTokenToFrontendInCookieBasedAuth {
			return
		}
	}
	res.SetHeader(accessTokenHeaderName, token, false)
	exposeHeader(res, accessTokenHeaderName)
}

func (c *normalisedConfig) setRefreshToken(res framework.Response, method TransferMethod, t *TokenInfo) {
	if t == nil {
		return
	}
	if method == TransferCookie {
		res.SetCookie(c.cookie(refreshTokenCookieName, t.Token, c.refreshTokenPath, time.UnixMilli(t.Expiry)))
		return
	}
	res.SetHeader(refreshTokenHeaderName, t.Token, false)
	exposeHeader(res, refreshTokenHeaderName)
}

func (c *normalisedConfig) setAntiCsrf(res framework.Response, token string) {
	if token == "" {
		return
	}
	res.SetHeader(antiCsrfHeaderName, token, false)
	exposeHeader(res, antiCsrfHeaderName)
}

// clearTokens removes tokens for method, or for both methods when method is
// TransferAny.
func (c *normalisedConfig) clearTokens(res framework.Response, method TransferMethod) {
	if method == TransferCookie || method == TransferAny {
		res.SetCookie(c.cookie(accessTokenCookieName, "", "/", time.Unix(0, 0)))
		res.SetCookie(c.cookie(refreshTokenCookieName, "", c.refreshTokenPath, time.Unix(0, 0)))
	}
	if method == TransferHeader || method == TransferAny {
		res.SetHeader(accessTokenHeaderName, "", false)
		res.SetHeader(refreshTokenHeaderName, "", false)
		exposeHeader(res, accessTokenHeaderName)
		exposeHeader(res, refreshTokenHeaderName)
	}
	res.SetHeader(frontTokenHeaderName, "remove", false)
	exposeHeader(res, frontTokenHeaderName)
}
