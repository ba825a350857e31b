package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quokkaworks/identity/internal/identity/revocation"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client), mr
}

func TestRefreshOutstandingLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRefreshOutstanding(ctx, "tok-1", time.Minute))

	ok, err := s.ConsumeRefreshIfOutstanding(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Second consume of the same token must lose.
	ok, err = s.ConsumeRefreshIfOutstanding(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsumeUnknownToken(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.ConsumeRefreshIfOutstanding(context.Background(), "never-issued")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsumeHasSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRefreshOutstanding(ctx, "tok-race", time.Minute))

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeRefreshIfOutstanding(ctx, "tok-race")
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for ok := range wins {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestMarkRefreshRejectsNonPositiveTTL(t *testing.T) {
	s, _ := newTestStore(t)

	require.Error(t, s.MarkRefreshOutstanding(context.Background(), "tok-2", 0))
	require.Error(t, s.MarkRefreshOutstanding(context.Background(), "tok-2", -time.Second))
}

func TestRefreshMarkerExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRefreshOutstanding(ctx, "tok-3", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := s.ConsumeRefreshIfOutstanding(ctx, "tok-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveRefreshOutstanding(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRefreshOutstanding(ctx, "tok-4", time.Minute))
	require.NoError(t, s.RemoveRefreshOutstanding(ctx, "tok-4"))

	ok, err := s.ConsumeRefreshIfOutstanding(ctx, "tok-4")
	require.NoError(t, err)
	require.False(t, ok)

	// Removing an absent marker is fine.
	require.NoError(t, s.RemoveRefreshOutstanding(ctx, "tok-4"))
}

func TestAccessRevocation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	revoked, err := s.IsAccessRevoked(ctx, "acc-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, s.MarkAccessRevoked(ctx, "acc-1", time.Minute))

	revoked, err = s.IsAccessRevoked(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// The denylist entry lapses with the token's own lifetime.
	mr.FastForward(2 * time.Minute)
	revoked, err = s.IsAccessRevoked(ctx, "acc-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestMarkAccessRevokedExpiredTokenIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkAccessRevoked(ctx, "acc-2", 0))
	require.NoError(t, s.MarkAccessRevoked(ctx, "acc-2", -time.Minute))

	revoked, err := s.IsAccessRevoked(ctx, "acc-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestUnavailableStoreSurfacesSentinel(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := s.ConsumeRefreshIfOutstanding(ctx, "tok-5")
	require.ErrorIs(t, err, revocation.ErrUnavailable)

	_, err = s.IsAccessRevoked(ctx, "acc-3")
	require.ErrorIs(t, err, revocation.ErrUnavailable)

	require.ErrorIs(t, s.MarkRefreshOutstanding(ctx, "tok-5", time.Minute), revocation.ErrUnavailable)
	require.ErrorIs(t, s.MarkAccessRevoked(ctx, "acc-3", time.Minute), revocation.ErrUnavailable)
	require.ErrorIs(t, s.Ping(ctx), revocation.ErrUnavailable)
}
