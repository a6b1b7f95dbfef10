// Package orchestrator drives the ASR -> LLM -> TTS pipeline (C7):
// state transitions, cancellation, and sentence-segmented streaming
// synthesis. Grounded on original_source/pipeline/orchestrator.py's
// cancel-then-clear audio_start handling and _run_pipeline's ASR/LLM/
// TTS sequencing, and on the teacher's internal/voice/orchestrator.go
// for the cancellation-token/TTS-forwarder shape.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/antoniostano/wallace/internal/emotion"
	"github.com/antoniostano/wallace/internal/external"
	"github.com/antoniostano/wallace/internal/memory"
	"github.com/antoniostano/wallace/internal/observability"
	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/segmenter"
	"github.com/antoniostano/wallace/internal/sensor"
	"github.com/antoniostano/wallace/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultVADThreshold    = 0.5
	defaultMaxHistoryTurns = 10
	randomFactPrompt       = "请用一句话分享一个随机的有趣冷知识，语气要活泼。"
)

// Config tunes the orchestrator's pipeline behavior.
type Config struct {
	// VADThreshold is stored but not consulted: runPipeline gates on
	// ASR.HasSpeech, which applies the backend's own threshold.
	VADThreshold    float64
	MaxHistoryTurns int
}

func (c Config) withDefaults() Config {
	if c.VADThreshold <= 0 {
		c.VADThreshold = defaultVADThreshold
	}
	if c.MaxHistoryTurns <= 0 {
		c.MaxHistoryTurns = defaultMaxHistoryTurns
	}
	return c
}

// Orchestrator wires the external ASR/LLM/TTS collaborators and the
// sensor engine into the pipeline algorithm of spec.md 4.7.
type Orchestrator struct {
	ASR    external.ASR
	LLM    external.LLM
	TTS    external.TTSBackends
	Sensor *sensor.Engine
	Logger *zap.Logger
	cfg    Config

	// Episodic, when set, additionally persists each completed turn to
	// a durable conversational log independent of the Session's
	// in-memory ChatHistory window (SPEC_FULL.md §3's supplemental
	// episodic-history store). Optional; nil-safe.
	Episodic memory.Store

	// Metrics is optional; nil-safe throughout. When set, each turn's
	// commit-to-stage latencies are recorded against the stage names
	// observability.stageTargetP95MS knows budgets for.
	Metrics *observability.Metrics
}

func New(asr external.ASR, llm external.LLM, tts external.TTSBackends, sensorEngine *sensor.Engine, logger *zap.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{ASR: asr, LLM: llm, TTS: tts, Sensor: sensorEngine, Logger: logger, cfg: cfg.withDefaults()}
}

// taskHandle implements session.PipelineHandle over a context.CancelFunc
// and a completion channel.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *taskHandle) Cancel() { h.cancel() }
func (h *taskHandle) Wait()   { <-h.done }

// OnAudioStart cancels any active pipeline, clears the audio buffer,
// and transitions to RECORDING (spec.md 4.7).
func (o *Orchestrator) OnAudioStart(ctx context.Context, s *session.Session) {
	o.CancelPipeline(ctx, s)
	s.ClearAudio()
	_ = s.Transition(session.StateRecording)
}

// OnAudioEnd requires RECORDING, transitions to PROCESSING, and spawns
// run_pipeline as a cancellable task.
func (o *Orchestrator) OnAudioEnd(ctx context.Context, s *session.Session) {
	if s.State() != session.StateRecording {
		return
	}
	if err := s.Transition(session.StateProcessing); err != nil {
		o.Logger.Warn("audio_end rejected", zap.Error(err))
		return
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	handle := &taskHandle{cancel: cancel, done: done}
	s.SetPipeline(handle)

	go func() {
		defer close(done)
		o.runPipeline(taskCtx, s)
	}()
}

// CancelPipeline signals cancellation and awaits completion. If the
// session was SPEAKING at the moment of cancellation, tts_cancel is
// emitted first.
func (o *Orchestrator) CancelPipeline(_ context.Context, s *session.Session) {
	handle := s.Pipeline()
	if handle != nil {
		handle.Cancel()
		handle.Wait()
	}
	if s.State() == session.StateSpeaking {
		_ = s.Socket.SendText(protocol.TTSCancel{Type: protocol.TypeTTSCancel})
	}
	s.ForceIdle()
	s.ClearPipeline()
}

// runPipeline implements the 9-step algorithm of spec.md 4.7.
func (o *Orchestrator) runPipeline(ctx context.Context, s *session.Session) {
	turnStart := time.Now()

	samples := s.TakeAudio()
	s.ClearAudio()

	if !o.ASR.HasSpeech(samples) {
		_ = s.Transition(session.StateIdle)
		return
	}

	text, err := o.ASR.Transcribe(ctx, samples)
	if err != nil {
		o.Logger.Warn("asr failed", zap.Error(err))
		o.observeProviderError("asr", err)
		_ = s.Transition(session.StateIdle)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		_ = s.Transition(session.StateIdle)
		return
	}

	if s.Treehouse() {
		o.Logger.Info("treehouse transcription", zap.String("user_id", s.UserID), zap.String("text", text))
		_ = s.Transition(session.StateIdle)
		return
	}

	sensorCtx := ""
	if o.Sensor != nil {
		sensorCtx = o.Sensor.Context(s)
	}
	messages := o.buildMessages(s, text, sensorCtx)
	o.observeStage("commit_to_context_ready", turnStart)

	if err := s.Transition(session.StateSpeaking); err != nil {
		o.Logger.Warn("speaking transition rejected", zap.Error(err))
		return
	}
	o.observeStage("commit_to_assistant_working", turnStart)

	s.PipelineLock.Lock()
	defer s.PipelineLock.Unlock()

	fullResponse, anySentenceSent := o.stream(ctx, s, messages, turnStart)
	if ctx.Err() != nil {
		return
	}

	mood, cleaned := emotion.Extract(fullResponse)
	err = s.Socket.SendText(protocol.Text{Type: protocol.TypeText, Content: cleaned, Partial: false, Mood: string(mood)})
	o.observeOutbound("text", err)

	if anySentenceSent {
		err = s.Socket.SendText(protocol.TTSEnd{Type: protocol.TypeTTSEnd})
		o.observeOutbound("tts_end", err)
	}

	s.AppendHistory("user", text)
	s.AppendHistory("assistant", cleaned)
	o.saveEpisodic(s.UserID, "user", text)
	o.saveEpisodic(s.UserID, "assistant", cleaned)
	_ = s.Transition(session.StateIdle)
	o.observeStage("turn_total", turnStart)
}

// saveEpisodic fires a best-effort write to the episodic store, logging
// rather than propagating failures: persistence here is a durability
// nicety, not part of the turn's user-visible contract.
func (o *Orchestrator) saveEpisodic(userID, role, content string) {
	if o.Episodic == nil || content == "" {
		return
	}
	record := memory.TurnRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	go func() {
		if err := o.Episodic.SaveTurn(context.Background(), record); err != nil {
			o.Logger.Warn("episodic save failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// buildMessages assembles the full LLM message list (spec.md 4.7 step 4).
func (o *Orchestrator) buildMessages(s *session.Session, userText, sensorCtx string) []external.ChatMessage {
	prompt := systemPrompt(s.Personality(), s.Memory().Nickname, s.Memory().Interests, sensorCtx)
	out := []external.ChatMessage{{Role: "system", Content: prompt}}
	for _, m := range s.RecentHistory(o.cfg.MaxHistoryTurns) {
		out = append(out, external.ChatMessage{Role: m.Role, Content: m.Content})
	}
	out = append(out, external.ChatMessage{Role: "user", Content: userText})
	return out
}

// stream feeds the LLM token stream into the segmenter and streams each
// completed sentence through TTS, emitting tts_start before the first.
// Returns the full accumulated text and whether any sentence was
// synthesized.
func (o *Orchestrator) stream(ctx context.Context, s *session.Session, messages []external.ChatMessage, turnStart time.Time) (string, bool) {
	tokens, err := o.LLM.ChatStream(ctx, messages)
	if err != nil {
		o.Logger.Warn("llm stream failed to start", zap.Error(err))
		o.observeProviderError("llm", err)
		return "", false
	}

	var full strings.Builder
	seg := segmenter.New()
	firstSent := false
	firstToken := true

	for tok := range tokens {
		if ctx.Err() != nil {
			return full.String(), firstSent
		}
		if tok.Err != nil {
			o.Logger.Warn("llm stream error", zap.Error(tok.Err))
			o.observeProviderError("llm", tok.Err)
			break
		}
		if firstToken {
			firstToken = false
			o.observeStage("commit_to_thinking_delta", turnStart)
			o.observeStage("commit_to_first_text", turnStart)
		}
		full.WriteString(tok.Text)
		for _, sentence := range seg.Push(tok.Text) {
			if !firstSent {
				o.observeStage("commit_to_tts_ready", turnStart)
			}
			firstSent = o.speakSentence(ctx, s, sentence, firstSent, "thinking", turnStart)
		}
	}

	if remaining, ok := seg.Flush(); ok {
		if !firstSent {
			o.observeStage("commit_to_tts_ready", turnStart)
		}
		firstSent = o.speakSentence(ctx, s, remaining, firstSent, "thinking", turnStart)
	}

	return full.String(), firstSent
}

// speakSentence strips any mood tag, emits tts_start with initialMood on
// the first sentence, and streams synthesized frames as binary messages.
// Returns the updated firstSent flag.
func (o *Orchestrator) speakSentence(ctx context.Context, s *session.Session, sentence string, firstSent bool, initialMood string, turnStart time.Time) bool {
	_, cleaned := emotion.Extract(sentence)
	if cleaned == "" {
		return firstSent
	}

	wasFirstSentence := !firstSent
	if wasFirstSentence {
		err := s.Socket.SendText(protocol.TTSStart{Type: protocol.TypeTTSStart, Mood: initialMood})
		o.observeOutbound("tts_start", err)
		firstSent = true
	}

	frames, errs := o.TTS.Synthesize(ctx, s.TTSBackend(), cleaned)
	firstFrame := true
	for frame := range frames {
		if ctx.Err() != nil {
			return firstSent
		}
		if wasFirstSentence && firstFrame {
			firstFrame = false
			o.observeStage("commit_to_first_audio", turnStart)
			if o.Metrics != nil {
				o.Metrics.ObserveFirstAudioLatency(time.Since(turnStart))
			}
		}
		err := s.Socket.SendBytes(frame)
		o.observeOutbound("audio", err)
	}
	if err := <-errs; err != nil {
		o.Logger.Warn("tts synthesis failed", zap.Error(err))
		o.observeProviderError("tts", err)
	}
	return firstSent
}

// observeStage records a turn-stage latency if metrics are configured.
func (o *Orchestrator) observeStage(stage string, turnStart time.Time) {
	if o.Metrics != nil {
		o.Metrics.ObserveTurnStage(stage, time.Since(turnStart))
	}
}

// observeOutbound records an outbound message delivery outcome.
func (o *Orchestrator) observeOutbound(msgType string, err error) {
	if o.Metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.Metrics.ObserveOutboundMessage(msgType, result)
}

// observeProviderError records a failure from an external collaborator.
func (o *Orchestrator) observeProviderError(provider string, err error) {
	if o.Metrics == nil || err == nil {
		return
	}
	o.Metrics.ProviderErrors.WithLabelValues(provider, "error").Inc()
}

// PushRandomFact implements the shake event's degenerate pipeline
// (spec.md 4.7): no ASR, a one-shot user message, never touches chat
// history.
func (o *Orchestrator) PushRandomFact(ctx context.Context, s *session.Session) {
	turnStart := time.Now()

	if !s.PipelineLock.TryLockTimeout(200 * time.Millisecond) {
		return
	}
	defer s.PipelineLock.Unlock()

	if s.State() != session.StateIdle {
		return
	}
	if err := s.Transition(session.StateProcessing); err != nil {
		return
	}
	if err := s.Transition(session.StateSpeaking); err != nil {
		_ = s.Transition(session.StateIdle)
		return
	}
	o.observeStage("commit_to_assistant_working", turnStart)

	sensorCtx := ""
	if o.Sensor != nil {
		sensorCtx = o.Sensor.Context(s)
	}
	prompt := systemPrompt(s.Personality(), s.Memory().Nickname, s.Memory().Interests, sensorCtx)
	messages := []external.ChatMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: randomFactPrompt},
	}
	o.observeStage("commit_to_context_ready", turnStart)

	tokens, err := o.LLM.ChatStream(ctx, messages)
	if err != nil {
		o.observeProviderError("llm", err)
		_ = s.Transition(session.StateIdle)
		return
	}

	var full strings.Builder
	seg := segmenter.New()
	firstSent := false
	firstToken := true
	for tok := range tokens {
		if ctx.Err() != nil {
			_ = s.Transition(session.StateIdle)
			return
		}
		if tok.Err != nil {
			o.observeProviderError("llm", tok.Err)
			break
		}
		if firstToken {
			firstToken = false
			o.observeStage("commit_to_thinking_delta", turnStart)
			o.observeStage("commit_to_first_text", turnStart)
		}
		full.WriteString(tok.Text)
		for _, sentence := range seg.Push(tok.Text) {
			if !firstSent {
				o.observeStage("commit_to_tts_ready", turnStart)
			}
			firstSent = o.speakSentence(ctx, s, sentence, firstSent, "surprised", turnStart)
		}
	}
	if remaining, ok := seg.Flush(); ok {
		if !firstSent {
			o.observeStage("commit_to_tts_ready", turnStart)
		}
		firstSent = o.speakSentence(ctx, s, remaining, firstSent, "surprised", turnStart)
	}

	mood, cleaned := emotion.Extract(full.String())
	err = s.Socket.SendText(protocol.Text{Type: protocol.TypeText, Content: cleaned, Partial: false, Mood: string(mood)})
	o.observeOutbound("text", err)

	if firstSent {
		err = s.Socket.SendText(protocol.TTSEnd{Type: protocol.TypeTTSEnd})
		o.observeOutbound("tts_end", err)
	}
	_ = s.Transition(session.StateIdle)
	o.observeStage("turn_total", turnStart)
}
