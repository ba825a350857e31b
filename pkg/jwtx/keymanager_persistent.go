package jwtx

import (
	"context"
	"fmt"
	"time"

	"github.com/quokkaworks/identity/pkg/cryptox"
	"github.com/quokkaworks/identity/pkg/idx"
)

// SigningKeyRecord represents a signing key stored in the directory database.
// This mirrors the domain type without importing it, preventing circular
// dependencies.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// KeyStore defines the minimal interface needed for persistent key
// management.
type KeyStore interface {
	// ListAllSigningKeys returns all signing keys (including retired but
	// unexpired ones) for verification during the rotation grace period.
	ListAllSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	// ListActiveSigningKeys returns only active (non-retired, non-expired)
	// keys for signing operations.
	ListActiveSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	// CreateSigningKey stores a new signing key with encrypted private key
	// material.
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures a KeyManager with persistent key
// storage.
type PersistentKeyManagerOptions struct {
	// Store provides access to the signing keys database.
	Store KeyStore

	// Algorithm specifies which signing algorithm to use for NEW keys.
	// Loaded keys will use their stored algorithm.
	Algorithm string

	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// RSABits specifies the RSA key size for RS256 when generating new keys.
	RSABits int

	// NumKeys specifies the target number of active signing keys.
	// If fewer active keys exist in the database, new ones are generated.
	NumKeys int

	// GracePeriod is how long retired keys remain valid for verification.
	GracePeriod time.Duration

	// Clock is the time source for the verifier. Nil means the wall clock.
	Clock func() time.Time
}

// NewPersistentKeyManager creates a KeyManager that loads keys from the
// directory database. Unlike ephemeral keys, these keys survive service
// restarts and support gradual rotation: a retired key's public half keeps
// verifying previously issued tokens until its grace period ends.
//
// On initialization it loads all unexpired keys for verification, loads
// active keys for signing, and generates new keys up to the NumKeys target.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("jwtx: Store is required for persistent key manager")
	}
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	if opts.NumKeys <= 0 {
		opts.NumKeys = 3
	}
	if opts.NumKeys > 10 {
		opts.NumKeys = 10
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 30 * 24 * time.Hour
	}

	allKeys, err := opts.Store.ListAllSigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to load keys from database: %w", err)
	}

	activeKeys, err := opts.Store.ListActiveSigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to load active keys: %w", err)
	}

	keyset := NewKeySet()

	// Every stored key's public half is accepted for verification.
	for _, keyRecord := range allKeys {
		pemData, err := cryptox.DecryptPrivateKey(keyRecord.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to decrypt key %s: %w", keyRecord.Kid, err)
		}

		signer, err := createSignerFromPEM(keyRecord.Algorithm, keyRecord.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to create signer for key %s: %w", keyRecord.Kid, err)
		}

		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add key %s to keyset: %w", keyRecord.Kid, err)
		}
	}

	// Only active keys sign new tokens.
	activeSigners := make([]Signer, 0, len(activeKeys))
	for _, keyRecord := range activeKeys {
		pemData, err := cryptox.DecryptPrivateKey(keyRecord.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to decrypt active key %s: %w", keyRecord.Kid, err)
		}

		signer, err := createSignerFromPEM(keyRecord.Algorithm, keyRecord.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to create active signer %s: %w", keyRecord.Kid, err)
		}

		activeSigners = append(activeSigners, signer)
	}

	// Top up to the target count.
	now := time.Now()
	for len(activeSigners) < opts.NumKeys {
		kid, err := generateRandomKeyID()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key ID: %w", err)
		}

		pemData, signer, err := generateNewKeyAndSigner(opts.Algorithm, kid, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate new key: %w", err)
		}

		encryptedKey, err := cryptox.EncryptPrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to encrypt new key: %w", err)
		}

		keyRecord := SigningKeyRecord{
			ID:                  idx.New().String(),
			Kid:                 kid,
			Algorithm:           opts.Algorithm,
			PrivateKeyEncrypted: encryptedKey,
			CreatedAt:           now,
			RetiredAt:           nil,
			ExpiresAt:           now.Add(opts.GracePeriod), // extended when retired
		}

		if err := opts.Store.CreateSigningKey(ctx, keyRecord); err != nil {
			return nil, fmt.Errorf("jwtx: failed to store new key: %w", err)
		}

		activeSigners = append(activeSigners, signer)
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add new key to keyset: %w", err)
		}
	}

	verifier, err := verifierFor(opts.Algorithm, keyset, opts.Issuer, opts.Clock)
	if err != nil {
		return nil, err
	}

	return &KeyManager{
		Verifier:  verifier,
		KeySet:    keyset,
		algorithm: opts.Algorithm,
		signers:   activeSigners,
	}, nil
}

// createSignerFromPEM creates a signer from PEM-encoded private key data.
func createSignerFromPEM(algorithm, kid string, pemData []byte) (Signer, error) {
	switch algorithm {
	case AlgorithmRS256:
		return NewSignerRS256(kid, pemData)
	case AlgorithmEdDSA:
		return NewSignerEdDSA(kid, pemData)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// generateNewKeyAndSigner generates a new key pair and returns both the PEM
// data and signer.
func generateNewKeyAndSigner(algorithm, kid string, rsaBits int) ([]byte, Signer, error) {
	var pemData []byte
	var err error

	switch algorithm {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = 4096
		}
		pemData, err = cryptox.GenerateRSAKey(rsaBits)
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}

	if err != nil {
		return nil, nil, err
	}

	signer, err := createSignerFromPEM(algorithm, kid, pemData)
	if err != nil {
		return nil, nil, err
	}

	return pemData, signer, nil
}
