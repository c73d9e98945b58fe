package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/service"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

// KeyRotationHandler rotates and retires access token signing keys in both
// ephemeral and persistent modes.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// signingKeyJSON is the public view of a signing key. The sealed private key
// never leaves the service.
type signingKeyJSON struct {
	ID        string  `json:"id,omitempty"`
	Kid       string  `json:"kid"`
	Algorithm string  `json:"algorithm"`
	CreatedAt string  `json:"createdAt,omitempty"`
	RetiredAt *string `json:"retiredAt,omitempty"`
	ExpiresAt string  `json:"expiresAt,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toSigningKeyJSON(key domain.SigningKey) signingKeyJSON {
	var retiredAt *string
	if key.RetiredAt != nil {
		s := formatTime(*key.RetiredAt)
		retiredAt = &s
	}
	return signingKeyJSON{
		ID:        key.ID,
		Kid:       key.Kid,
		Algorithm: key.Algorithm,
		CreatedAt: formatTime(key.CreatedAt),
		RetiredAt: retiredAt,
		ExpiresAt: formatTime(key.ExpiresAt),
	}
}

func toSigningKeysJSON(keys []domain.SigningKey) []signingKeyJSON {
	out := make([]signingKeyJSON, len(keys))
	for i, k := range keys {
		out[i] = toSigningKeyJSON(k)
	}
	return out
}

type rotateKeyRequest struct {
	RetireExisting bool `json:"retireExisting"`
}

// HandleRotate handles POST /recipe/jwt/keys/rotate.
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	resp, err := h.KeyRotationService.RotateKey(r.Context(), service.RotateKeyRequest{
		RetireExisting: req.RetireExisting,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, struct {
		Status      string           `json:"status"`
		NewKey      signingKeyJSON   `json:"newKey"`
		RetiredKeys []signingKeyJSON `json:"retiredKeys"`
		ActiveKeys  int              `json:"activeKeys"`
	}{StatusOK, toSigningKeyJSON(resp.NewKey), toSigningKeysJSON(resp.RetiredKeys), resp.ActiveKeys})
}

// HandleListKeys handles GET /recipe/jwt/keys.
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.KeyRotationService.ListSigningKeys(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status string           `json:"status"`
		Keys   []signingKeyJSON `json:"keys"`
	}{StatusOK, toSigningKeysJSON(keys)})
}

// HandleRetireKey handles POST /recipe/jwt/keys/{kid}/retire.
func (h *KeyRotationHandler) HandleRetireKey(w http.ResponseWriter, r *http.Request) {
	kid := r.PathValue("kid")
	if kid == "" {
		writeError(w, r, service.ErrBadRequest)
		return
	}

	err := h.KeyRotationService.RetireKey(r.Context(), kid)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeOK(w, statusResponse{Status: "UNKNOWN_KEY_ERROR"})
	case errors.Is(err, service.ErrKeyAlreadyRetired):
		writeOK(w, statusResponse{Status: "KEY_ALREADY_RETIRED_ERROR"})
	case err != nil:
		writeError(w, r, err)
	default:
		writeOK(w, statusResponse{Status: StatusOK})
	}
}
