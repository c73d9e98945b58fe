// Package jwtx is the access token codec: a three segment
// header.payload.signature string with a fixed versioned header, verified
// against keys published by the core's JWKS endpoint.
package jwtx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrHeaderMismatch = errors.New("jwtx: unexpected token header")
	ErrUnknownKID     = errors.New("jwtx: unknown kid")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")
	ErrStructure      = errors.New("jwtx: invalid payload structure")
	ErrExpired        = errors.New("jwtx: token expired")
)

// DefaultAlgorithms are accepted by Parse when the caller does not narrow them.
var DefaultAlgorithms = []string{AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256}

// Parsed is a token split into its segments. The payload is still raw JSON;
// call ValidateStructure to get typed fields out of it.
type Parsed struct {
	Raw        string
	Header     Header
	RawHeader  string
	RawPayload string
	Payload    []byte
	Signature  []byte
}

// SigningInput is the "header.payload" string the signature covers.
func (p *Parsed) SigningInput() string {
	return p.RawHeader + "." + p.RawPayload
}

// Parse splits and decodes a token. It checks the header but does not verify
// the signature.
func Parse(token string, algs ...string) (*Parsed, error) {
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want 3 segments, got %d", ErrMalformed, len(parts))
	}

	segs := make([][]byte, 3)
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment %d", ErrMalformed, i)
		}
		b, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrMalformed, i, err)
		}
		segs[i] = b
	}

	h, err := decodeHeader(segs[0], algs)
	if err != nil {
		return nil, err
	}

	return &Parsed{
		Raw:        token,
		Header:     h,
		RawHeader:  parts[0],
		RawPayload: parts[1],
		Payload:    segs[1],
		Signature:  segs[2],
	}, nil
}

// KeyLookup resolves a public verification key by kid.
type KeyLookup interface {
	Key(ctx context.Context, kid string) (any, error)
}

// Verify checks the token signature with the key named by its kid.
func Verify(ctx context.Context, p *Parsed, keys KeyLookup) error {
	key, err := keys.Key(ctx, p.Header.Kid)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrUnknownKID, p.Header.Kid, err)
	}

	method := jwt.GetSigningMethod(p.Header.Alg)
	if method == nil {
		return fmt.Errorf("%w: alg %q", ErrHeaderMismatch, p.Header.Alg)
	}

	if err := method.Verify(p.SigningInput(), p.Signature, key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	}
	return nil
}

// Sign encodes payload as JSON and signs it with s under the fixed header.
func Sign(payload any, s Signer) (string, error) {
	header, err := NewHeader(s.Alg(), s.KID()).Encode()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jwtx: encode payload: %w", err)
	}

	input := header + "." + base64.RawURLEncoding.EncodeToString(body)
	sig, err := s.SignRaw(input)
	if err != nil {
		return "", err
	}
	return input + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ParseAndVerify is Parse, Verify and ValidateStructure in one call. It does
// not check expiry.
func ParseAndVerify(ctx context.Context, token string, keys KeyLookup, algs ...string) (*AccessTokenPayload, error) {
	p, err := Parse(token, algs...)
	if err != nil {
		return nil, err
	}
	if err := Verify(ctx, p, keys); err != nil {
		return nil, err
	}
	return ValidateStructure(p.Payload)
}
