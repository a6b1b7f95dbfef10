package external

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWakewordVerifier_ConfirmsValidAudio(t *testing.T) {
	v := NewWakewordVerifier(time.Second, 0.5, zap.NewNop())
	require.True(t, v.Verify(context.Background(), "aGVsbG8="))
}

func TestWakewordVerifier_RejectsInvalidBase64(t *testing.T) {
	v := NewWakewordVerifier(time.Second, 0.5, zap.NewNop())
	require.False(t, v.Verify(context.Background(), "not-base64!!"))
}

func TestWakewordVerifier_DefaultsConstructorArgs(t *testing.T) {
	v := NewWakewordVerifier(0, 0, zap.NewNop())
	require.Equal(t, 2*time.Second, v.Timeout)
	require.Equal(t, 0.5, v.Threshold)
}
