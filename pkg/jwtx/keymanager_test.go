package jwtx_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralKeyManager_AllAlgorithms(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		rsaBits   int
	}{
		{"RS256", jwtx.AlgorithmRS256, 2048},
		{"ES256", jwtx.AlgorithmES256, 0},
		{"EdDSA", jwtx.AlgorithmEdDSA, 0},
		{"default", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
				Algorithm: tt.algorithm,
				RSABits:   tt.rsaBits,
				NumKeys:   1,
			})
			require.NoError(t, err)
			require.True(t, km.IsReady())
			require.Equal(t, 1, km.NumSigners())

			token, err := km.SignAccessToken(newPayload(time.Now()))
			require.NoError(t, err)

			_, err = jwtx.ParseAndVerify(context.Background(), token, km)
			require.NoError(t, err)
		})
	}
}

func TestNewEphemeralKeyManager_UnsupportedAlgorithm(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: "HS256"})
	require.ErrorContains(t, err, "unsupported algorithm")
}

func TestKeyManager_NumKeysClamped(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, km.NumSigners())

	km, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{NumKeys: 50})
	require.NoError(t, err)
	require.Equal(t, 10, km.NumSigners())
	require.Len(t, km.KeySet.PublicJWKS().Keys, 10)
}

func TestKeyManager_RetiredKeysStillVerify(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{NumKeys: 2})
	require.NoError(t, err)

	signers := km.GetSigners()
	token, err := jwtx.Sign(newPayload(time.Now()), signers[0])
	require.NoError(t, err)

	require.NoError(t, km.RetireSignerByKid(signers[0].KID()))
	require.Equal(t, 1, km.NumSigners())
	require.Equal(t, signers[1].KID(), km.GetSigner().KID())

	_, err = jwtx.ParseAndVerify(context.Background(), token, km)
	require.NoError(t, err)

	require.ErrorContains(t, km.RetireSignerByKid(signers[1].KID()), "last signing key")
	require.Error(t, km.RetireSignerByKid("missing"))
}

type memKeyStore struct {
	mu   sync.Mutex
	keys []jwtx.SigningKeyRecord
}

func (m *memKeyStore) ListSigningKeys(_ context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []jwtx.SigningKeyRecord
	for _, k := range m.keys {
		if now.Before(k.ExpiresAt) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKeyStore) CreateSigningKey(_ context.Context, key jwtx.SigningKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return nil
}

func TestPersistentKeyManager_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := &memKeyStore{}
	sealer := cryptox.NewRandomSealer()
	opts := jwtx.PersistentKeyManagerOptions{Store: store, Sealer: sealer, NumKeys: 2}

	first, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	require.Len(t, store.keys, 2)

	token, err := first.SignAccessToken(newPayload(time.Now()))
	require.NoError(t, err)

	second, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	require.Len(t, store.keys, 2, "restart must not generate more keys")

	_, err = jwtx.ParseAndVerify(ctx, token, second)
	require.NoError(t, err)
}

func TestPersistentKeyManager_RetiredKeyVerifiesOnly(t *testing.T) {
	ctx := context.Background()
	store := &memKeyStore{}
	sealer := cryptox.NewRandomSealer()
	opts := jwtx.PersistentKeyManagerOptions{Store: store, Sealer: sealer, NumKeys: 1}

	first, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	token, err := first.SignAccessToken(newPayload(time.Now()))
	require.NoError(t, err)

	retired := time.Now()
	store.keys[0].RetiredAt = &retired

	second, err := jwtx.NewPersistentKeyManager(ctx, opts)
	require.NoError(t, err)
	require.Len(t, store.keys, 2)
	require.NotEqual(t, store.keys[0].Kid, second.GetSigner().KID())

	_, err = jwtx.ParseAndVerify(ctx, token, second)
	require.NoError(t, err)
}

func TestPersistentKeyManager_WrongSealer(t *testing.T) {
	ctx := context.Background()
	store := &memKeyStore{}

	_, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store: store, Sealer: cryptox.NewRandomSealer(), NumKeys: 1,
	})
	require.NoError(t, err)

	_, err = jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store: store, Sealer: cryptox.NewRandomSealer(), NumKeys: 1,
	})
	require.ErrorIs(t, err, cryptox.ErrUnseal)
}
