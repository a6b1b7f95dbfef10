package memory

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProfileStore_LoadMissingReturnsDefault(t *testing.T) {
	s := NewProfileStore("u1", t.TempDir(), time.Minute)
	p := s.Load()
	require.Equal(t, UserProfile{}, p)
}

func TestProfileStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := NewProfileStore("u1", t.TempDir(), time.Minute)
	p := UserProfile{
		Nickname:         "小明",
		Preferences:      []string{"tea", "jazz"},
		Interests:        []string{"hiking"},
		RecentTopics:     []string{"weather"},
		ImportantDates:   map[string]string{"birthday": "03-14"},
		InteractionCount: 5,
		FirstMet:         "2026-01-01",
	}

	require.NoError(t, s.Save(p))
	got := s.Load()
	require.True(t, got.Equal(p))
}

func TestProfileStore_LoadInvalidJSONReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	s := NewProfileStore("u1", dir, time.Minute)
	require.NoError(t, s.Save(UserProfile{Nickname: "x"}))

	// Corrupt the file directly.
	require.NoError(t, os.WriteFile(s.path(), []byte("not json"), 0o644))

	got := s.Load()
	require.Equal(t, UserProfile{}, got)
}

func TestProfileStore_HasChangesAndShouldSync(t *testing.T) {
	s := NewProfileStore("u1", t.TempDir(), 10*time.Millisecond)
	p := UserProfile{Nickname: "a"}
	require.True(t, s.HasChanges(p))

	s.MarkSynced(p)
	require.False(t, s.HasChanges(p))
	require.True(t, s.HasChanges(UserProfile{Nickname: "b"}))

	require.False(t, s.ShouldSync())
	time.Sleep(15 * time.Millisecond)
	require.True(t, s.ShouldSync())
}
