package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const validPayload = `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"public",` +
	`"refreshTokenHash1":"r1","expiryTime":1700000000000,"timeCreated":1690000000000,"up":{}}`

func TestValidateStructure(t *testing.T) {
	p, err := jwtx.ValidateStructure([]byte(validPayload))
	require.NoError(t, err)
	require.Equal(t, "h", p.SessionHandle)
	require.Equal(t, int64(1700000000000), p.ExpiryTime)
	require.Empty(t, p.ParentRefreshTokenHash1)

	withOptional := `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"public","refreshTokenHash1":"r1",` +
		`"parentRefreshTokenHash1":"r0","antiCsrfToken":null,"expiryTime":1,"timeCreated":0,"up":{"a":1}}`
	p, err = jwtx.ValidateStructure([]byte(withOptional))
	require.NoError(t, err)
	require.Equal(t, "r0", p.ParentRefreshTokenHash1)
	require.Empty(t, p.AntiCsrfToken)
}

func TestValidateStructureRejects(t *testing.T) {
	tests := map[string]string{
		"not an object":      `[]`,
		"missing handle":     `{"sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":1,"timeCreated":1,"up":{}}`,
		"numeric sub":        `{"sessionHandle":"h","sub":1,"rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":1,"timeCreated":1,"up":{}}`,
		"string expiry":      `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":"1","timeCreated":1,"up":{}}`,
		"fractional expiry":  `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":1.5,"timeCreated":1,"up":{}}`,
		"array payload":      `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":1,"timeCreated":1,"up":[]}`,
		"null hash":          `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":null,"expiryTime":1,"timeCreated":1,"up":{}}`,
		"numeric parent":     `{"sessionHandle":"h","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","parentRefreshTokenHash1":2,"expiryTime":1,"timeCreated":1,"up":{}}`,
		"empty handle value": `{"sessionHandle":"","sub":"u","rsub":"u","tId":"t","refreshTokenHash1":"r","expiryTime":1,"timeCreated":1,"up":{}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := jwtx.ValidateStructure([]byte(raw))
			require.ErrorIs(t, err, jwtx.ErrStructure)
		})
	}
}

func TestCheckExpiry(t *testing.T) {
	now := time.Now()
	p := &jwtx.AccessTokenPayload{ExpiryTime: now.Add(time.Second).UnixMilli()}
	require.NoError(t, p.CheckExpiry(now))
	require.ErrorIs(t, p.CheckExpiry(now.Add(2*time.Second)), jwtx.ErrExpired)
}
