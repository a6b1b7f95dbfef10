package registry

import (
	"testing"

	"github.com/antoniostano/wallace/internal/session"
	"github.com/stretchr/testify/require"
)

func TestSwapReturnsPrevious(t *testing.T) {
	r := New()
	a := session.New("u1", nil)
	b := session.New("u1", nil)

	_, had := r.Swap("u1", a)
	require.False(t, had)

	prev, had := r.Swap("u1", b)
	require.True(t, had)
	require.Same(t, a, prev)

	got, ok := r.Get("u1")
	require.True(t, ok)
	require.Same(t, b, got)
}

func TestDeleteOnlyIfStillCurrent(t *testing.T) {
	r := New()
	a := session.New("u1", nil)
	b := session.New("u1", nil)

	r.Swap("u1", a)
	r.Swap("u1", b) // reconnect replaces a with b

	// A stale disconnect for 'a' must not remove 'b'.
	r.Delete("u1", a)
	got, ok := r.Get("u1")
	require.True(t, ok)
	require.Same(t, b, got)

	r.Delete("u1", b)
	_, ok = r.Get("u1")
	require.False(t, ok)
}

func TestAllSnapshot(t *testing.T) {
	r := New()
	r.Swap("u1", session.New("u1", nil))
	r.Swap("u2", session.New("u2", nil))
	require.Len(t, r.All(), 2)
	require.Equal(t, 2, r.Count())
}
