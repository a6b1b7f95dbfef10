package external

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"
)

// WakewordVerifier performs second-stage wake-word confirmation.
// Grounded on original_source's WakewordVerifier: a verification that
// does not complete within Timeout defaults to confirmed=true rather
// than blocking or rejecting the utterance.
type WakewordVerifier struct {
	Timeout   time.Duration
	Threshold float64
	logger    *zap.Logger
}

func NewWakewordVerifier(timeout time.Duration, threshold float64, logger *zap.Logger) *WakewordVerifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	return &WakewordVerifier{Timeout: timeout, Threshold: threshold, logger: logger}
}

func (v *WakewordVerifier) Verify(ctx context.Context, audioBase64 string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- v.verifyImpl(audioBase64)
	}()

	select {
	case confirmed := <-result:
		return confirmed
	case <-ctx.Done():
		v.logger.Warn("wakeword verification timed out, defaulting to confirmed")
		return true
	}
}

// verifyImpl is a placeholder inference path: no wake-word model is
// wired up, so decoding succeeds and verification always confirms.
// Grounded on original_source's placeholder model (a real model load
// would replace this function's body, not its signature).
func (v *WakewordVerifier) verifyImpl(audioBase64 string) bool {
	if _, err := base64.StdEncoding.DecodeString(audioBase64); err != nil {
		return false
	}
	return true
}
