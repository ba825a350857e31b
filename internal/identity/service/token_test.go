package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quokkaworks/identity/internal/identity/domain"
	redisrev "github.com/quokkaworks/identity/internal/identity/revocation/redis"
	"github.com/quokkaworks/identity/pkg/jwtx"
)

const testIssuer = "identity-test"

// fakeClock is a mutable time source shared by the signer's verifier and
// the token service.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fakeDirectory is an in-memory RoleDirectory.
type fakeDirectory struct {
	mu          sync.Mutex
	roles       map[string][]string
	defined     map[string]bool
	err         error
	existsCalls int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		roles:   make(map[string][]string),
		defined: make(map[string]bool),
	}
}

func (d *fakeDirectory) LookupRolesForSubject(_ context.Context, subjectID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]string(nil), d.roles[subjectID]...), nil
}

func (d *fakeDirectory) RoleExists(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.existsCalls++
	if d.err != nil {
		return false, d.err
	}
	return d.defined[name], nil
}

func (d *fakeDirectory) setRoles(subjectID string, roles ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[subjectID] = roles
	for _, role := range roles {
		d.defined[role] = true
	}
}

type testEnv struct {
	svc   *TokenService
	dir   *fakeDirectory
	clock *fakeClock
	mr    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		NumKeys:   1,
		Clock:     clock.Now,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	dir := newFakeDirectory()

	svc := &TokenService{
		KeyManager:  km,
		Revocations: redisrev.NewWithClient(client),
		Directory:   dir,
		Issuer:      testIssuer,
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		Clock:       clock.Now,
	}

	return &testEnv{svc: svc, dir: dir, clock: clock, mr: mr}
}

func TestIssueThenValidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "admin", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	valid, err := env.svc.IsAccessTokenValid(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.True(t, valid)

	t.Run("access token carries the role snapshot", func(t *testing.T) {
		claims, err := env.svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, jwtx.ClassAccess, claims.Class)
		require.Equal(t, []string{"admin", "viewer"}, claims.Roles)
	})

	t.Run("refresh token is bound to the access token", func(t *testing.T) {
		access, err := env.svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)
		refresh, err := env.svc.KeyManager.Verifier.Verify(pair.RefreshToken)
		require.NoError(t, err)

		require.Equal(t, jwtx.ClassRefresh, refresh.Class)
		require.Equal(t, access.ID, refresh.PairedAccessID)
		require.NotEqual(t, access.ID, refresh.ID)
		require.Empty(t, refresh.Roles)
	})

	t.Run("subject extraction", func(t *testing.T) {
		subject, err := env.svc.GetSubjectID(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "alice", subject)
	})
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.IssueTokenPair(context.Background(), "", LoginContext{})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, "not.a.token")
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("tampered token", func(t *testing.T) {
		raw := []byte(pair.AccessToken)
		// Flip one bit in the middle of the payload.
		raw[len(raw)/2] ^= 0x01

		valid, err := env.svc.IsAccessTokenValid(ctx, string(raw))
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("refresh token presented as access", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		issued, err := env.svc.KeyManager.Verifier.Verify(pair.AccessToken)
		require.NoError(t, err)

		// exp == now counts as expired.
		env.clock.Set(issued.ExpiresAt.Time)

		valid, err := env.svc.IsAccessTokenValid(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.False(t, valid)
	})
}

func TestRotateRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	original, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	rotated, err := env.svc.RotateRefreshToken(ctx, original.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, original.AccessToken, rotated.AccessToken)
	require.NotEqual(t, original.RefreshToken, rotated.RefreshToken)

	t.Run("new access token is valid", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, rotated.AccessToken)
		require.NoError(t, err)
		require.True(t, valid)
	})

	t.Run("old access token is revoked", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, original.AccessToken)
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("replaying the old refresh token fails", func(t *testing.T) {
		_, err := env.svc.RotateRefreshToken(ctx, original.RefreshToken)
		require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
	})

	t.Run("roles are re-read at rotation", func(t *testing.T) {
		env.dir.setRoles("alice", "viewer", "admin")

		next, err := env.svc.RotateRefreshToken(ctx, rotated.RefreshToken)
		require.NoError(t, err)

		claims, err := env.svc.KeyManager.Verifier.Verify(next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, []string{"viewer", "admin"}, claims.Roles)
	})
}

func TestRotateRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := env.svc.RotateRefreshToken(ctx, "garbage")
		require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
	})

	t.Run("access token presented as refresh", func(t *testing.T) {
		_, err := env.svc.RotateRefreshToken(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		env.clock.Advance(25 * time.Hour)
		_, err := env.svc.RotateRefreshToken(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
	})
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.RotateRefreshToken(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var winners, losers int
	for err := range results {
		switch {
		case err == nil:
			winners++
		default:
			require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
			losers++
		}
	}
	require.Equal(t, 1, winners)
	require.Equal(t, attempts-1, losers)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken))

	t.Run("access token no longer valid", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("refresh token no longer rotates", func(t *testing.T) {
		_, err := env.svc.RotateRefreshToken(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenReuseOrInvalid)
	})

	t.Run("second logout still succeeds", func(t *testing.T) {
		// The marker is gone but the token itself still verifies; logout
		// stays idempotent.
		require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken))
	})
}

func TestLogoutRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.Logout(ctx, "garbage"), ErrInvalidToken)
	require.ErrorIs(t, env.svc.Logout(ctx, pair.AccessToken), ErrInvalidToken)
}

func TestStoreUnavailableFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	env.mr.Close()

	t.Run("validation", func(t *testing.T) {
		valid, err := env.svc.IsAccessTokenValid(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrStoreUnavailable)
		require.False(t, valid)
	})

	t.Run("rotation", func(t *testing.T) {
		_, err := env.svc.RotateRefreshToken(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("logout", func(t *testing.T) {
		require.ErrorIs(t, env.svc.Logout(ctx, pair.RefreshToken), ErrStoreUnavailable)
	})

	t.Run("issuance", func(t *testing.T) {
		_, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
		require.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestRotationRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")
	env.svc.Limiter = NewRotationLimiter(1, time.Minute)

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	rotated, err := env.svc.RotateRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = env.svc.RotateRefreshToken(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestGetSubjectIDIsPureExtraction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	pair, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{})
	require.NoError(t, err)

	// Extraction keeps working on an expired token; validity is the
	// caller's responsibility.
	env.clock.Advance(2 * time.Hour)

	subject, err := env.svc.GetSubjectID(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", subject)

	_, err = env.svc.GetSubjectID("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

// fakeHistory collects login events in memory.
type fakeHistory struct {
	mu     sync.Mutex
	events []domain.LoginEvent
}

func (h *fakeHistory) RecordLogin(_ context.Context, ev domain.LoginEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeHistory) ListBySubject(_ context.Context, subjectID string, _ int) ([]domain.LoginEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.LoginEvent
	for _, ev := range h.events {
		if ev.SubjectID == subjectID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (h *fakeHistory) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func TestIssueRecordsLoginHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.dir.setRoles("alice", "viewer")

	history := &fakeHistory{}
	env.svc.History = history

	_, err := env.svc.IssueTokenPair(ctx, "alice", LoginContext{
		RemoteIP:  "203.0.113.7",
		UserAgent: "cli/1.0",
	})
	require.NoError(t, err)

	events, err := history.ListBySubject(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "203.0.113.7", events[0].RemoteIP)
	require.Equal(t, "cli/1.0", events[0].UserAgent)
	require.NotEmpty(t, events[0].TokenID)
}
