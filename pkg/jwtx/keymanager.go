package jwtx

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quokkaworks/identity/pkg/cryptox"
)

// Supported JWT signing algorithms. Both are asymmetric on purpose: the
// private key never leaves the issuing service, and any process holding the
// JWKS can verify.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmEdDSA = "EdDSA"
)

// KeyManager is the key material provider for the token service. It holds
// the active private signing keys and the set of currently-accepted public
// verification keys, and supports rotation by retiring signers while their
// public halves stay in the KeySet.
//
// Multiple signing keys are kept for availability and load distribution;
// signing operations pick one at random.
type KeyManager struct {
	Verifier  Verifier
	KeySet    *KeySet
	algorithm string

	signers []Signer
	mu      sync.RWMutex
}

// KeyManagerOptions configures the KeyManager for a specific use case.
type KeyManagerOptions struct {
	// Algorithm specifies which signing algorithm to use.
	// Supported values: "RS256", "EdDSA"
	Algorithm string

	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// RSABits specifies the RSA key size for RS256 algorithm.
	// Only used when Algorithm is RS256. Defaults to 4096 if not specified.
	// Must be at least 2048.
	RSABits int

	// NumKeys specifies how many signing keys to generate.
	// Defaults to 3 if not specified. Minimum is 1, maximum is 10.
	NumKeys int

	// Clock is the time source used by the verifier when judging expiry.
	// Nil means the wall clock; tests inject a fixed clock.
	Clock func() time.Time
}

// NewEphemeralKeyManager creates a new KeyManager with ephemeral keys.
// The keys are generated on the fly and only exist in memory - they are
// never persisted to disk. This means all tokens become invalid when the
// service restarts, which is useful for stateless key rotation.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 3
	}
	if numKeys > 10 {
		numKeys = 10
	}

	keyset := NewKeySet()
	signers := make([]Signer, 0, numKeys)

	for i := 0; i < numKeys; i++ {
		keyID, err := generateRandomKeyID()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key ID: %w", err)
		}

		signer, err := generateSigner(opts.Algorithm, keyID, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate signer %d: %w", i+1, err)
		}

		signers = append(signers, signer)

		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add signer %d to keyset: %w", i+1, err)
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
		signers:   signers,
	}, nil
}

// verifierFor picks the Verifier implementation matching the algorithm.
func verifierFor(algorithm string, keyset *KeySet, issuer string, clock func() time.Time) (Verifier, error) {
	switch algorithm {
	case AlgorithmRS256:
		return NewCommonRS256(keyset, issuer, clock), nil
	case AlgorithmEdDSA:
		return NewCommonEdDSA(keyset, issuer, clock), nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, EdDSA)", algorithm)
	}
}

// generateSigner creates a new signer with the specified algorithm and key ID.
func generateSigner(algorithm, keyID string, rsaBits int) (Signer, error) {
	switch algorithm {
	case AlgorithmRS256:
		bits := rsaBits
		if bits == 0 {
			bits = 4096
		}
		pemBytes, err := cryptox.GenerateRSAKey(bits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RS256 key: %w", err)
		}
		return NewSignerRS256(keyID, pemBytes)

	case AlgorithmEdDSA:
		pemBytes, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("failed to generate EdDSA key: %w", err)
		}
		return NewSignerEdDSA(keyID, pemBytes)

	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// GetSigner returns a randomly selected signer from the available signing
// keys. If only one key exists, it returns that key consistently.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if len(km.signers) == 0 {
		return nil
	}

	if len(km.signers) == 1 {
		return km.signers[0]
	}

	idx := rand.Intn(len(km.signers))
	return km.signers[idx]
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner adds a new signing key to the KeyManager.
// The key is added to both the active signers list (for signing) and the
// KeySet (for verification). This method is thread-safe and can be used for
// runtime key rotation.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("signer cannot be nil")
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("failed to add signer to keyset: %w", err)
	}

	km.signers = append(km.signers, signer)
	return nil
}

// RetireSignerByKid removes a signing key from active signing operations.
// The key remains in the KeySet for token verification (grace period).
// Returns an error if the key is not found or if it's the last active key.
func (km *KeyManager) RetireSignerByKid(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return fmt.Errorf("cannot retire the last signing key")
	}

	found := false
	newSigners := make([]Signer, 0, len(km.signers)-1)
	for _, signer := range km.signers {
		if signer.KID() == kid {
			found = true
		} else {
			newSigners = append(newSigners, signer)
		}
	}

	if !found {
		return fmt.Errorf("signer with kid %q not found", kid)
	}

	km.signers = newSigners
	return nil
}

// GetSigners returns a copy of all active signing keys.
func (km *KeyManager) GetSigners() []Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	signers := make([]Signer, len(km.signers))
	copy(signers, km.signers)
	return signers
}

// generateRandomKeyID creates a random key identifier using cryptographic
// entropy. Format: "identity-{random-token}".
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate random key ID: %w", err)
	}
	return fmt.Sprintf("identity-%s", token), nil
}
