package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	a := New()
	b := New()

	require.False(t, a.IsZero())
	require.False(t, b.IsZero())
	require.Less(t, a.String(), b.String())
}

func TestParseRoundTrip(t *testing.T) {
	id := New()

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "   ", "not-a-ulid", "0000"} {
		_, err := Parse(s)
		require.ErrorIs(t, err, ErrInvalid)
	}
}

func TestTimeExtraction(t *testing.T) {
	at := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	id := NewAt(at)

	got := id.Time()
	require.WithinDuration(t, at, got, time.Millisecond)
}

func TestZeroTime(t *testing.T) {
	require.True(t, Zero.Time().IsZero())
}
