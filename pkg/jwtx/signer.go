package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer produces raw signatures over a token's signing input. The header and
// payload encoding live in Sign so every algorithm emits the same layout.
type Signer interface {
	Alg() string
	KID() string
	SignRaw(signingInput string) ([]byte, error)
	PublicJWK() JWK
	Validate() error
}

// keySigner backs all three algorithms; the golang-jwt signing method does
// the actual primitive work.
type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
}

// NewSignerEdDSA creates an EdDSA signer from PKCS8 PEM bytes.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivatePEM(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not Ed25519 private key")
	}
	return &keySigner{kid: kid, method: jwt.SigningMethodEdDSA, key: key}, nil
}

// NewSignerES256 creates an ES256 signer from PKCS8 PEM bytes.
func NewSignerES256(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivatePEM(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not ECDSA private key")
	}
	return &keySigner{kid: kid, method: jwt.SigningMethodES256, key: key}, nil
}

// NewSignerRS256 creates an RS256 signer from PKCS1 or PKCS8 PEM bytes.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivatePEM(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not RSA private key")
	}
	return &keySigner{kid: kid, method: jwt.SigningMethodRS256, key: key}, nil
}

// NewSigner dispatches on algorithm name.
func NewSigner(algorithm, kid string, pemKey []byte) (Signer, error) {
	switch algorithm {
	case AlgorithmRS256:
		return NewSignerRS256(kid, pemKey)
	case AlgorithmES256:
		return NewSignerES256(kid, pemKey)
	case AlgorithmEdDSA:
		return NewSignerEdDSA(kid, pemKey)
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", algorithm)
	}
}

func parsePrivatePEM(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS1: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM block %q", block.Type)
	}
}

func (s *keySigner) Alg() string { return s.method.Alg() }
func (s *keySigner) KID() string { return s.kid }

// SignRaw signs "header.payload" and returns the signature bytes.
func (s *keySigner) SignRaw(signingInput string) ([]byte, error) {
	sig, err := s.method.Sign(signingInput, s.key)
	if err != nil {
		return nil, fmt.Errorf("jwtx: sign: %w", err)
	}
	return sig, nil
}

// PublicJWK returns the JWK published through the core's JWKS endpoint.
func (s *keySigner) PublicJWK() JWK {
	switch pub := s.key.Public().(type) {
	case ed25519.PublicKey:
		return NewEd25519JWK(s.kid, "sig", s.Alg(), pub)
	case *ecdsa.PublicKey:
		return NewES256JWK(s.kid, "sig", s.Alg(), pub)
	case *rsa.PublicKey:
		return NewRSAJWK(s.kid, "sig", s.Alg(), pub)
	default:
		return JWK{Kid: s.kid}
	}
}

// Validate does a quick sanity check on the loaded key material.
func (s *keySigner) Validate() error {
	switch key := s.key.(type) {
	case ed25519.PrivateKey:
		if len(key) != ed25519.PrivateKeySize {
			return errors.New("jwtx: invalid Ed25519 private key size")
		}
	case *ecdsa.PrivateKey:
		if key == nil || key.Curve.Params().Name != "P-256" {
			return errors.New("jwtx: ES256 requires a P-256 key")
		}
	case *rsa.PrivateKey:
		if key == nil || key.N.BitLen() < 2048 {
			return errors.New("jwtx: RSA key must be at least 2048 bits")
		}
	default:
		return errors.New("jwtx: nil signing key")
	}
	return nil
}
