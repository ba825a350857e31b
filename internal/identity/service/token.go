// Package service implements the token lifecycle operations on top of the
// signing layer, the revocation ledger and the role directory.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quokkaworks/identity/internal/identity/directory"
	"github.com/quokkaworks/identity/internal/identity/domain"
	"github.com/quokkaworks/identity/internal/identity/revocation"
	"github.com/quokkaworks/identity/pkg/idx"
	"github.com/quokkaworks/identity/pkg/jwtx"
	"github.com/quokkaworks/identity/pkg/slogx"
)

var (
	// ErrTokenReuseOrInvalid is the uniform rejection for refresh rotation.
	// It deliberately covers malformed, expired, tampered, wrong-class and
	// already-spent tokens alike so the response never tells an attacker
	// which check failed. Logs carry the distinction.
	ErrTokenReuseOrInvalid = errors.New("token_reuse_or_invalid")

	// ErrInvalidToken is returned by operations that surface verification
	// failure explicitly (logout, subject extraction).
	ErrInvalidToken = errors.New("invalid_token")

	// ErrStoreUnavailable means the revocation ledger could not answer.
	// Callers must fail closed; this is the one fault reported distinctly
	// from token rejection.
	ErrStoreUnavailable = errors.New("store_unavailable")

	// ErrRateLimited is returned when a subject rotates faster than the
	// configured limit allows.
	ErrRateLimited = errors.New("too_many_requests")
)

// RoleDirectory is the slice of the directory the token service needs.
type RoleDirectory interface {
	// LookupRolesForSubject returns the role names a subject currently
	// holds. Unknown subjects have no roles and no error.
	LookupRolesForSubject(ctx context.Context, subjectID string) ([]string, error)

	// RoleExists reports whether a role name is still defined.
	RoleExists(ctx context.Context, name string) (bool, error)
}

// LoginContext carries optional request metadata recorded into the login
// history at issuance time.
type LoginContext struct {
	RemoteIP  string
	UserAgent string
}

// TokenService mints, validates, rotates and revokes token pairs.
//
// Roles are snapshotted into the access token at mint time and refreshed
// only when the refresh token is rotated; mid-lifetime role changes do not
// affect tokens already in flight.
type TokenService struct {
	KeyManager  *jwtx.KeyManager
	Revocations revocation.Store
	Directory   RoleDirectory

	// History, when set, records one login event per issuance. Failures
	// are logged and never block issuance.
	History directory.LoginHistory

	// Limiter, when set, throttles RotateRefreshToken per subject.
	Limiter *RotationLimiter

	// Issuer is stamped into the iss claim and must match what the
	// verifier enforces.
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock is the time source; nil means the wall clock.
	Clock func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// IssueTokenPair mints an access/refresh pair for an authenticated subject.
// The caller has already established who the subject is; this method reads
// the subject's roles, embeds them in the access token, binds the refresh
// token to the access token's id and registers the refresh token as
// outstanding in the revocation ledger.
func (s *TokenService) IssueTokenPair(ctx context.Context, subjectID string, login LoginContext) (*domain.TokenPair, error) {
	if subjectID == "" {
		return nil, ErrInvalidToken
	}

	roles, err := s.Directory.LookupRolesForSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("issue: role lookup: %w", err)
	}

	pair, refreshClaims, err := s.mintPair(ctx, subjectID, roles)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, subjectID, refreshClaims.PairedAccessID, login)

	return pair, nil
}

// IsAccessTokenValid reports whether an access token should be honoured.
// Every verification failure, including a revoked or wrong-class token,
// comes back as plain false; the only error this returns is
// ErrStoreUnavailable, when the revocation ledger cannot answer and the
// caller must fail closed.
func (s *TokenService) IsAccessTokenValid(ctx context.Context, token string) (bool, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		log.Debug("access token rejected", slog.String("reason", err.Error()))
		return false, nil
	}

	if err := claims.ValidateClass(jwtx.ClassAccess); err != nil {
		log.Debug("access token rejected", slog.String("reason", err.Error()))
		return false, nil
	}

	revoked, err := s.Revocations.IsAccessRevoked(ctx, claims.ID)
	if err != nil {
		return false, storeErr(err)
	}

	return !revoked, nil
}

// RotateRefreshToken exchanges a refresh token for a fresh pair. The
// presented token is single-use: the outstanding marker is consumed
// atomically, so of any number of concurrent presentations exactly one
// succeeds and the rest get ErrTokenReuseOrInvalid. The paired access
// token is revoked for its remaining lifetime and roles are re-read from
// the directory so the new access token reflects current grants.
func (s *TokenService) RotateRefreshToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	log := slogx.FromContext(ctx)
	now := s.now()

	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		log.Info("refresh rotation rejected", slog.String("reason", err.Error()))
		return nil, ErrTokenReuseOrInvalid
	}
	if err := claims.ValidateClass(jwtx.ClassRefresh); err != nil {
		log.Info("refresh rotation rejected", slog.String("reason", err.Error()))
		return nil, ErrTokenReuseOrInvalid
	}

	if s.Limiter != nil && !s.Limiter.Allow(claims.Subject) {
		return nil, ErrRateLimited
	}

	won, err := s.Revocations.ConsumeRefreshIfOutstanding(ctx, claims.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !won {
		// Replay of a spent token, or a token the ledger never saw. The
		// legitimate holder may have been robbed; log loudly.
		log.Warn("refresh token replayed or unknown",
			slog.String("subject_id", claims.Subject),
			slog.String("token_id", claims.ID),
		)
		return nil, ErrTokenReuseOrInvalid
	}

	// The old access token dies with its refresh companion.
	if remaining := s.remainingAccessLifetime(claims, now); remaining > 0 {
		if err := s.Revocations.MarkAccessRevoked(ctx, claims.PairedAccessID, remaining); err != nil {
			return nil, storeErr(err)
		}
	}

	roles, err := s.Directory.LookupRolesForSubject(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("rotate: role lookup: %w", err)
	}

	pair, _, err := s.mintPair(ctx, claims.Subject, roles)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout invalidates both halves of a pair given its refresh token. Unlike
// validation, a bad refresh token here is an explicit ErrInvalidToken: the
// caller asked for a state change and deserves to know it didn't happen.
func (s *TokenService) Logout(ctx context.Context, token string) error {
	log := slogx.FromContext(ctx)
	now := s.now()

	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		log.Info("logout rejected", slog.String("reason", err.Error()))
		return ErrInvalidToken
	}
	if err := claims.ValidateClass(jwtx.ClassRefresh); err != nil {
		log.Info("logout rejected", slog.String("reason", err.Error()))
		return ErrInvalidToken
	}

	if err := s.Revocations.RemoveRefreshOutstanding(ctx, claims.ID); err != nil {
		return storeErr(err)
	}

	if remaining := s.remainingAccessLifetime(claims, now); remaining > 0 {
		if err := s.Revocations.MarkAccessRevoked(ctx, claims.PairedAccessID, remaining); err != nil {
			return storeErr(err)
		}
	}

	log.Info("subject logged out", slog.String("subject_id", claims.Subject))
	return nil
}

// GetSubjectID extracts the subject id from a token WITHOUT validating it.
// The caller must have verified the token (e.g. via IsAccessTokenValid)
// beforehand; this is pure extraction and never re-checks signature,
// expiry or revocation.
func (s *TokenService) GetSubjectID(token string) (string, error) {
	claims, err := jwtx.ExtractClaims(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// mintPair signs a fresh access/refresh pair and registers the refresh
// token as outstanding.
func (s *TokenService) mintPair(ctx context.Context, subjectID string, roles []string) (*domain.TokenPair, *jwtx.Claims, error) {
	now := s.now()

	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return nil, nil, fmt.Errorf("mint: no signing key available")
	}

	access := jwtx.NewAccessClaims(subjectID, roles, s.accessTTL(), s.Issuer, now)
	refresh := jwtx.NewRefreshClaims(subjectID, access.ID, s.refreshTTL(), s.Issuer, now)

	accessToken, err := signer.Sign(access)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: sign access: %w", err)
	}
	refreshToken, err := signer.Sign(refresh)
	if err != nil {
		return nil, nil, fmt.Errorf("mint: sign refresh: %w", err)
	}

	if err := s.Revocations.MarkRefreshOutstanding(ctx, refresh.ID, s.refreshTTL()); err != nil {
		return nil, nil, storeErr(err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, &refresh, nil
}

// remainingAccessLifetime computes how long the paired access token still
// has to live. The pair was minted in one call, so the access token's
// issue instant equals the refresh token's.
func (s *TokenService) remainingAccessLifetime(claims jwtx.Claims, now time.Time) time.Duration {
	if claims.IssuedAt == nil {
		return 0
	}
	return claims.IssuedAt.Time.Add(s.accessTTL()).Sub(now)
}

func (s *TokenService) recordLogin(ctx context.Context, subjectID, accessTokenID string, login LoginContext) {
	if s.History == nil {
		return
	}

	err := s.History.RecordLogin(ctx, domain.LoginEvent{
		ID:        idx.New(),
		SubjectID: subjectID,
		TokenID:   accessTokenID,
		RemoteIP:  login.RemoteIP,
		UserAgent: login.UserAgent,
		CreatedAt: s.now(),
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to record login event",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
	}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
