package service

import (
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
)

var refreshTokenAAD = []byte("tabsession/refresh-token")

// refreshTokenClaims is sealed into the opaque refresh token handed to
// clients. ParentRefreshTokenHash2 is the committed generation the token was
// rotated from; it is empty for the first generation.
type refreshTokenClaims struct {
	SessionHandle           string `json:"sessionHandle"`
	UserID                  string `json:"userId"`
	ParentRefreshTokenHash2 string `json:"parentRefreshTokenHash2,omitempty"`
	Nonce                   string `json:"nonce"`
	AntiCsrfToken           string `json:"antiCsrfToken,omitempty"`
}

func sealRefreshToken(s *cryptox.Sealer, c refreshTokenClaims) (string, error) {
	if c.Nonce == "" {
		nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return "", err
		}
		c.Nonce = nonce
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode refresh token: %w", err)
	}
	return s.SealString(raw, refreshTokenAAD)
}

func openRefreshToken(s *cryptox.Sealer, token string) (refreshTokenClaims, error) {
	raw, err := s.OpenString(token, refreshTokenAAD)
	if err != nil {
		return refreshTokenClaims{}, err
	}
	var c refreshTokenClaims
	if err := json.Unmarshal(raw, &c); err != nil {
		return refreshTokenClaims{}, fmt.Errorf("decode refresh token: %w", err)
	}
	if c.SessionHandle == "" || c.UserID == "" {
		return refreshTokenClaims{}, fmt.Errorf("refresh token missing session fields")
	}
	return c, nil
}
