package jwtx

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
)

// Fixed header values. Any token carrying a different typ or version is
// rejected before its signature is looked at.
const (
	HeaderType    = "JWT"
	HeaderVersion = "3"
)

// Header is the only header shape the codec accepts. Field order matters:
// the canonical encoding is compared byte for byte.
type Header struct {
	Alg     string `json:"alg"`
	Kid     string `json:"kid"`
	Typ     string `json:"typ"`
	Version string `json:"version"`
}

// NewHeader builds the canonical header for a signing key.
func NewHeader(alg, kid string) Header {
	return Header{Alg: alg, Kid: kid, Typ: HeaderType, Version: HeaderVersion}
}

// Encode returns the base64url form of the canonical header.
func (h Header) Encode() (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("jwtx: encode header: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// decodeHeader accepts a header only when it re-encodes to exactly the bytes
// that were sent and its algorithm is in algs.
func decodeHeader(raw []byte, algs []string) (Header, error) {
	var h Header
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	if dec.More() {
		return Header{}, fmt.Errorf("%w: trailing data", ErrHeaderMismatch)
	}

	if h.Typ != HeaderType || h.Version != HeaderVersion || h.Kid == "" {
		return Header{}, ErrHeaderMismatch
	}
	if !slices.Contains(algs, h.Alg) {
		return Header{}, fmt.Errorf("%w: alg %q", ErrHeaderMismatch, h.Alg)
	}

	canonical, err := json.Marshal(h)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	if !bytes.Equal(canonical, raw) {
		return Header{}, fmt.Errorf("%w: non-canonical encoding", ErrHeaderMismatch)
	}
	return h, nil
}
