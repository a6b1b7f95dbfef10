package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	s := New("u1", nil)
	require.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Transition(StateRecording))
	require.NoError(t, s.Transition(StateProcessing))
	require.NoError(t, s.Transition(StateSpeaking))
	require.NoError(t, s.Transition(StateIdle))
}

func TestIllegalTransitionIsRejectedAndStateUnchanged(t *testing.T) {
	s := New("u1", nil)
	require.NoError(t, s.Transition(StateRecording))

	err := s.Transition(StateSpeaking)
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StateRecording, s.State())
}

func TestAppendAndTakeAudio(t *testing.T) {
	s := New("u1", nil)
	// two little-endian int16 samples: 16384 (~0.5) and -16384 (~-0.5)
	s.AppendAudio([]byte{0x00, 0x40, 0x00, 0xC0})
	samples := s.TakeAudio()
	require.Len(t, samples, 2)
	require.InDelta(t, 0.5, samples[0], 0.001)
	require.InDelta(t, -0.5, samples[1], 0.001)

	s.ClearAudio()
	require.Empty(t, s.TakeAudio())
}

func TestRecentHistoryWindow(t *testing.T) {
	s := New("u1", nil)
	for i := 0; i < 10; i++ {
		s.AppendHistory("user", "q")
		s.AppendHistory("assistant", "a")
	}
	recent := s.RecentHistory(3)
	require.Len(t, recent, 6)
}

func TestWakewordOneShotSignal(t *testing.T) {
	s := New("u1", nil)
	require.False(t, s.WakewordConfirmed())

	s.SetWakewordConfirmed(true)
	require.True(t, s.WakewordConfirmed())
	require.False(t, s.WakewordConfirmed(), "signal is one-shot")
}
