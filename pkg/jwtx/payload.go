package jwtx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// AccessTokenPayload is the signed body of an access token. Times are epoch
// milliseconds.
type AccessTokenPayload struct {
	SessionHandle           string         `json:"sessionHandle"`
	UserID                  string         `json:"sub"`
	RecipeUserID            string         `json:"rsub"`
	TenantID                string         `json:"tId"`
	RefreshTokenHash1       string         `json:"refreshTokenHash1"`
	ParentRefreshTokenHash1 string         `json:"parentRefreshTokenHash1,omitempty"`
	AntiCsrfToken           string         `json:"antiCsrfToken,omitempty"`
	ExpiryTime              int64          `json:"expiryTime"`
	TimeCreated             int64          `json:"timeCreated"`
	UserPayload             map[string]any `json:"up"`
}

// Expiry returns ExpiryTime as a time.Time.
func (p *AccessTokenPayload) Expiry() time.Time {
	return time.UnixMilli(p.ExpiryTime)
}

// CheckExpiry returns ErrExpired once now has reached the expiry time.
func (p *AccessTokenPayload) CheckExpiry(now time.Time) error {
	if now.UnixMilli() >= p.ExpiryTime {
		return ErrExpired
	}
	return nil
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindObject
)

type fieldRule struct {
	name     string
	kind     fieldKind
	optional bool
}

var payloadRules = []fieldRule{
	{name: "sessionHandle", kind: kindString},
	{name: "sub", kind: kindString},
	{name: "rsub", kind: kindString},
	{name: "tId", kind: kindString},
	{name: "refreshTokenHash1", kind: kindString},
	{name: "parentRefreshTokenHash1", kind: kindString, optional: true},
	{name: "antiCsrfToken", kind: kindString, optional: true},
	{name: "expiryTime", kind: kindNumber},
	{name: "timeCreated", kind: kindNumber},
	{name: "up", kind: kindObject},
}

// ValidateStructure checks every required field is present with the right
// JSON type and decodes the payload. Optional fields may be absent or null.
func ValidateStructure(raw []byte) (*AccessTokenPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}

	for _, rule := range payloadRules {
		v, ok := fields[rule.name]
		isNull := ok && bytes.Equal(bytes.TrimSpace(v), []byte("null"))
		if !ok || isNull {
			if rule.optional {
				continue
			}
			return nil, fmt.Errorf("%w: missing %q", ErrStructure, rule.name)
		}
		if !hasKind(v, rule.kind) {
			return nil, fmt.Errorf("%w: %q has wrong type", ErrStructure, rule.name)
		}
	}

	var p AccessTokenPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	if p.SessionHandle == "" || p.UserID == "" || p.RefreshTokenHash1 == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrStructure)
	}
	return &p, nil
}

func hasKind(v json.RawMessage, kind fieldKind) bool {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return false
	}
	switch kind {
	case kindString:
		return v[0] == '"'
	case kindObject:
		return v[0] == '{'
	case kindNumber:
		if v[0] != '-' && (v[0] < '0' || v[0] > '9') {
			return false
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return false
		}
		_, err := n.Int64()
		return err == nil
	}
	return false
}
