package jwtx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quokkaworks/identity/pkg/cryptox"
	"github.com/quokkaworks/identity/pkg/jwtx"
)

func TestEdDSASignAndVerify(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	kid := "test-key-eddsa"

	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, kid, signer.KID())

	now := time.Now().UTC()
	claims := jwtx.NewAccessClaims("user-456", []string{"admin"}, 5*time.Minute, exampleIssuer, now)

	token, err := signer.Sign(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	jwks := keyset.PublicJWKS()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)
	require.Equal(t, "Ed25519", jwks.Keys[0].Crv)
	require.NotEmpty(t, jwks.Keys[0].X)

	verifier := jwtx.NewVerifierEdDSA(keyset, exampleIssuer, nil)

	parsed, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, claims.Subject, parsed.Subject)
	require.Equal(t, claims.Issuer, parsed.Issuer)
	require.Equal(t, claims.Roles, parsed.Roles)
	require.Equal(t, jwtx.ClassAccess, parsed.Class)
	require.NotEmpty(t, parsed.ID)
}

func TestEdDSAVerifyFailsForWrongIssuer(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)

	claims := jwtx.NewAccessClaims("user-789", nil, time.Minute, exampleIssuer, time.Now().UTC())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	verifier := jwtx.NewVerifierEdDSA(keyset, "wrong-issuer", nil)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestEdDSAVerifyFailsForUnknownKey(t *testing.T) {
	pemKey1, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	pemKey2, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer1, err := jwtx.NewSignerEdDSA("key1", pemKey1)
	require.NoError(t, err)
	signer2, err := jwtx.NewSignerEdDSA("key2", pemKey2)
	require.NoError(t, err)

	claims := jwtx.NewAccessClaims("user-1", nil, time.Minute, exampleIssuer, time.Now().UTC())
	token, err := signer1.Sign(claims)
	require.NoError(t, err)

	// Keyset only knows the second key.
	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer2))

	verifier := jwtx.NewVerifierEdDSA(keyset, exampleIssuer, nil)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestEdDSAVerifyFailsForExpiredToken(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)

	issued := time.Now().UTC()
	claims := jwtx.NewAccessClaims("user-1", nil, time.Minute, exampleIssuer, issued)
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))

	t.Run("still valid within ttl", func(t *testing.T) {
		clock := func() time.Time { return issued.Add(30 * time.Second) }
		verifier := jwtx.NewVerifierEdDSA(keyset, exampleIssuer, clock)
		_, err := verifier.Verify(token)
		require.NoError(t, err)
	})

	t.Run("expired exactly at exp", func(t *testing.T) {
		clock := func() time.Time { return issued.Add(time.Minute) }
		verifier := jwtx.NewVerifierEdDSA(keyset, exampleIssuer, clock)
		_, err := verifier.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})
}

func TestEdDSAVerifyFailsForTamperedToken(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	signer, err := jwtx.NewSignerEdDSA("k1", pemKey)
	require.NoError(t, err)

	claims := jwtx.NewAccessClaims("user-1", nil, time.Minute, exampleIssuer, time.Now().UTC())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	keyset := jwtx.NewKeySet()
	require.NoError(t, keyset.AddSigner(signer))
	verifier := jwtx.NewVerifierEdDSA(keyset, exampleIssuer, nil)

	// Corrupt the signature segment.
	tampered := token[:len(token)-4] + "AAAA"

	_, err = verifier.Verify(tampered)
	require.Error(t, err)
}
