package jwtx_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newPayload(now time.Time) *jwtx.AccessTokenPayload {
	return &jwtx.AccessTokenPayload{
		SessionHandle:     "handle-1",
		UserID:            "user-1",
		RecipeUserID:      "user-1",
		TenantID:          "public",
		RefreshTokenHash1: cryptox.RefreshTokenHash1("refresh"),
		AntiCsrfToken:     "csrf",
		ExpiryTime:        now.Add(time.Hour).UnixMilli(),
		TimeCreated:       now.UnixMilli(),
		UserPayload:       map[string]any{"role": "admin"},
	}
}

func newSigner(t *testing.T, alg string) (jwtx.Signer, *jwtx.KeySet) {
	t.Helper()

	var (
		pemKey []byte
		err    error
	)
	switch alg {
	case jwtx.AlgorithmEdDSA:
		pemKey, err = cryptox.GenerateEd25519Key()
	case jwtx.AlgorithmES256:
		pemKey, err = cryptox.GenerateES256Key()
	case jwtx.AlgorithmRS256:
		pemKey, err = cryptox.GenerateRSAKey(2048)
	}
	require.NoError(t, err)

	signer, err := jwtx.NewSigner(alg, "kid-"+alg, pemKey)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))
	return signer, keys
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256, jwtx.AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			signer, keys := newSigner(t, alg)
			want := newPayload(time.Now())

			token, err := jwtx.Sign(want, signer)
			require.NoError(t, err)
			require.Len(t, strings.Split(token, "."), 3)

			got, err := jwtx.ParseAndVerify(context.Background(), token, keys)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func flipBit(t *testing.T, segment string, bit int) string {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)
	b[bit/8%len(b)] ^= 1 << (bit % 8)
	return base64.RawURLEncoding.EncodeToString(b)
}

func TestVerifyRejectsSingleBitFlips(t *testing.T) {
	signer, keys := newSigner(t, jwtx.AlgorithmEdDSA)
	token, err := jwtx.Sign(newPayload(time.Now()), signer)
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	for _, bit := range []int{0, 7, 64, 255, 300} {
		sig := strings.Join([]string{parts[0], parts[1], flipBit(t, parts[2], bit)}, ".")
		_, err := jwtx.ParseAndVerify(context.Background(), sig, keys)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig, "signature bit %d", bit)

		body := strings.Join([]string{parts[0], flipBit(t, parts[1], bit), parts[2]}, ".")
		_, err = jwtx.ParseAndVerify(context.Background(), body, keys)
		require.Error(t, err, "payload bit %d", bit)
	}
}

func encodeSeg(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestParseRejectsHeaders(t *testing.T) {
	payload := encodeSeg(`{}`)
	sig := encodeSeg("sig")

	tests := []struct {
		name   string
		header string
	}{
		{"extra field", `{"alg":"EdDSA","kid":"k","typ":"JWT","version":"3","x":1}`},
		{"reordered", `{"kid":"k","alg":"EdDSA","typ":"JWT","version":"3"}`},
		{"whitespace", `{"alg":"EdDSA", "kid":"k","typ":"JWT","version":"3"}`},
		{"old version", `{"alg":"EdDSA","kid":"k","typ":"JWT","version":"2"}`},
		{"none alg", `{"alg":"none","kid":"k","typ":"JWT","version":"3"}`},
		{"hs256 alg", `{"alg":"HS256","kid":"k","typ":"JWT","version":"3"}`},
		{"missing kid", `{"alg":"EdDSA","kid":"","typ":"JWT","version":"3"}`},
		{"not json", `alg=EdDSA`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtx.Parse(encodeSeg(tt.header) + "." + payload + "." + sig)
			require.ErrorIs(t, err, jwtx.ErrHeaderMismatch)
		})
	}

	ok := `{"alg":"EdDSA","kid":"k","typ":"JWT","version":"3"}`
	_, err := jwtx.Parse(encodeSeg(ok) + "." + payload + "." + sig)
	require.NoError(t, err)

	_, err = jwtx.Parse(encodeSeg(ok)+"."+payload+"."+sig, jwtx.AlgorithmRS256)
	require.ErrorIs(t, err, jwtx.ErrHeaderMismatch, "alg outside the allowed list")
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "a.b", "a.b.c.d", "..", "a.!!.c", encodeSeg("{}") + ".." + encodeSeg("x")} {
		_, err := jwtx.Parse(token)
		require.ErrorIs(t, err, jwtx.ErrMalformed, "token %q", token)
	}
}

func TestVerifyUnknownKid(t *testing.T) {
	signer, _ := newSigner(t, jwtx.AlgorithmEdDSA)
	token, err := jwtx.Sign(newPayload(time.Now()), signer)
	require.NoError(t, err)

	_, err = jwtx.ParseAndVerify(context.Background(), token, jwtx.NewKeySet())
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestVerifyWrongKeyTypeForKid(t *testing.T) {
	edSigner, _ := newSigner(t, jwtx.AlgorithmEdDSA)
	_, esKeys := newSigner(t, jwtx.AlgorithmES256)
	esKey, err := esKeys.Get("kid-ES256")
	require.NoError(t, err)

	token, err := jwtx.Sign(newPayload(time.Now()), edSigner)
	require.NoError(t, err)
	p, err := jwtx.Parse(token)
	require.NoError(t, err)

	err = jwtx.Verify(context.Background(), p, staticKey{key: esKey})
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

type staticKey struct{ key any }

func (s staticKey) Key(context.Context, string) (any, error) { return s.key, nil }
