package jwtx

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
// It's algorithm-neutral, so we can support RSA and Ed25519 without
// separate types.
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA" or "OKP"
	Use string `json:"use,omitempty"` // what we use it for: "sig"
	Alg string `json:"alg,omitempty"` // algorithm: "RS256", "EdDSA"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA stuff
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// Ed25519 / OKP fields
	Crv string `json:"crv,omitempty"` // curve: "Ed25519"
	X   string `json:"x,omitempty"`   // base64url encoded public key
}

// JWKS is a JSON Web Key Set (RFC 7517). Verifying processes fetch this so
// they can check tokens without holding any private key material.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// NewEd25519JWK builds a JWK for an Ed25519 public key.
// Ed25519 keys use the "OKP" (Octet Key Pair) key type.
func NewEd25519JWK(kid, use, alg string, pub ed25519.PublicKey) JWK {
	return JWK{
		Kty: "OKP",
		Use: use,
		Alg: alg,
		Kid: kid,
		Crv: "Ed25519",
		X:   base64.RawURLEncoding.EncodeToString(pub),
	}
}

// PEM converts the JWK to PEM format for use with external tooling.
// Returns the PEM-encoded public key as a string.
func (j JWK) PEM() (string, error) {
	var publicKey any

	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return "", err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return "", err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		publicKey = &rsa.PublicKey{N: n, E: int(e)}

	case "OKP":
		if j.Crv != "Ed25519" {
			return "", errors.New("jwtx: unsupported OKP curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return "", err
		}
		if len(xb) != ed25519.PublicKeySize {
			return "", errors.New("jwtx: invalid Ed25519 public key size")
		}
		publicKey = ed25519.PublicKey(xb)

	default:
		return "", errors.New("jwtx: unsupported kty " + j.Kty)
	}

	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}
