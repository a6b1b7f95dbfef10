// Package push implements the proactive care pusher (C8): a
// presence-gated, pipeline-lock-serialized send of a short LLM-
// generated message to one or all online sessions. Grounded on
// original_source/care/scheduler.py's _push_to_session/_push_all.
package push

import (
	"context"
	"strings"
	"time"

	"github.com/antoniostano/wallace/internal/external"
	"github.com/antoniostano/wallace/internal/observability"
	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/registry"
	"github.com/antoniostano/wallace/internal/session"
	"go.uber.org/zap"
)

const carePushSystemPrompt = "你是 Wallace，生成一句简短的关怀语句。"

const defaultPushTimeout = 30 * time.Second

// Coordinator pushes proactive care messages (sedentary reminders,
// morning/evening greetings) into online sessions, without ever
// stepping on an in-flight conversational turn.
type Coordinator struct {
	Registry    *registry.Registry
	LLM         external.LLM
	TTS         external.TTSBackends
	Logger      *zap.Logger
	PushTimeout time.Duration
	// Metrics is optional; nil-safe throughout.
	Metrics *observability.Metrics
}

func New(reg *registry.Registry, llm external.LLM, tts external.TTSBackends, logger *zap.Logger, pushTimeout time.Duration) *Coordinator {
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	return &Coordinator{Registry: reg, LLM: llm, TTS: tts, Logger: logger, PushTimeout: pushTimeout}
}

// PushAll fans a prompt/mood pair out to every registered session,
// isolating one session's failure from the rest.
func (c *Coordinator) PushAll(ctx context.Context, prompt, mood string) {
	for _, s := range c.Registry.All() {
		c.pushToSessionSafely(ctx, s, prompt, mood)
	}
}

// pushToSessionSafely recovers from a panic in a single session's push
// so one bad session can never abort the fan-out, mirroring the
// original's per-session try/except around _push_to_session.
func (c *Coordinator) pushToSessionSafely(ctx context.Context, s *session.Session, prompt, mood string) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error("care push panicked", zap.String("user_id", s.UserID), zap.Any("recover", r))
		}
	}()
	c.pushToSession(ctx, s, prompt, mood)
}

// pushToSession implements the single-session push algorithm (spec.md
// §4.8): presence gate, bounded pipeline_lock acquire, LLM generation,
// empty-text skip, care message + TTS stream, always-release.
func (c *Coordinator) pushToSession(ctx context.Context, s *session.Session, prompt, mood string) {
	if !s.ProximityPresent() {
		c.Logger.Debug("skipping care push: user not present", zap.String("user_id", s.UserID))
		c.observe("skipped_absent")
		return
	}

	if !s.PipelineLock.TryLockTimeout(c.PushTimeout) {
		c.Logger.Debug("skipping care push: pipeline busy", zap.String("user_id", s.UserID))
		c.observe("skipped_busy")
		return
	}
	defer s.PipelineLock.Unlock()

	messages := []external.ChatMessage{
		{Role: "system", Content: carePushSystemPrompt},
		{Role: "user", Content: prompt},
	}

	tokens, err := c.LLM.ChatStream(ctx, messages)
	if err != nil {
		c.Logger.Warn("care push LLM call failed", zap.String("user_id", s.UserID), zap.Error(err))
		return
	}

	var text strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			c.Logger.Warn("care push LLM stream error", zap.String("user_id", s.UserID), zap.Error(tok.Err))
			break
		}
		text.WriteString(tok.Text)
	}

	content := strings.TrimSpace(text.String())
	if content == "" {
		c.observe("empty")
		return
	}

	if err := s.Socket.SendText(protocol.Care{Type: protocol.TypeCare, Content: content, Mood: mood}); err != nil {
		c.Logger.Warn("care push send failed", zap.String("user_id", s.UserID), zap.Error(err))
		return
	}

	frames, errs := c.TTS.Synthesize(ctx, s.TTSBackend(), content)
	for frame := range frames {
		if err := s.Socket.SendBytes(frame); err != nil {
			c.Logger.Warn("care push frame send failed", zap.String("user_id", s.UserID), zap.Error(err))
			return
		}
	}
	if err := <-errs; err != nil {
		c.Logger.Warn("care push synthesis failed", zap.String("user_id", s.UserID), zap.Error(err))
	}
	c.observe("sent")
}

func (c *Coordinator) observe(outcome string) {
	if c.Metrics != nil {
		c.Metrics.ObserveCarePush(outcome)
	}
}
