// Package session holds the per-connection state container (C2) and its
// pipeline state machine.
package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/antoniostano/wallace/internal/memory"
)

// PipelineState enumerates the session's dialog-pipeline lifecycle.
type PipelineState string

const (
	StateIdle       PipelineState = "idle"
	StateRecording  PipelineState = "recording"
	StateProcessing PipelineState = "processing"
	StateSpeaking   PipelineState = "speaking"
)

// transitions is the hard transition table from spec.md 4.7. Any edge
// not listed here is an error, not a silent slip. Idle->Processing is
// the entry point for the shake-event random fact, which speaks without
// ever recording audio. (Care pushes only take PipelineLock; they do not
// move the state.)
var transitions = map[PipelineState]map[PipelineState]bool{
	StateIdle:       {StateRecording: true, StateProcessing: true},
	StateRecording:  {StateIdle: true, StateProcessing: true},
	StateProcessing: {StateIdle: true, StateSpeaking: true},
	StateSpeaking:   {StateIdle: true, StateRecording: true},
}

// ErrInvalidTransition is raised for any request off the transition table.
type ErrInvalidTransition struct {
	From, To PipelineState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// SensorData is the last known telemetry reading, see spec.md SensorData.
type SensorData struct {
	Temp       float64
	Humidity   float64
	Light      float64
	AirQuality float64
	UpdatedAt  time.Time // zero value means "never received"
}

// Socket is the minimal transport contract a Session needs; satisfied by
// the Connection Router's websocket wrapper.
type Socket interface {
	SendText(v any) error
	SendBytes(b []byte) error
	Close() error
}

// PipelineHandle is held by a Session while a cancellable pipeline task
// (the main turn started by audio_end) is running against it.
type PipelineHandle interface {
	Cancel()
	Wait()
}

// Session is one instance per active connection, keyed by user_id.
// Every field that can be read or written from more than one goroutine
// (the receive loop, a spawned pipeline task, the heartbeat monitor, or
// a scheduled push) is routed through mu-guarded accessors below; only
// UserID, Socket, and PipelineLock are exempt, since they are either
// immutable after New or already internally synchronized.
type Session struct {
	UserID string
	Socket Socket

	mu sync.Mutex

	personality string // normal | cool | talkative | tsundere
	treehouse   bool
	ttsBackend  string // edge | cloud-alt

	state PipelineState

	pipeline PipelineHandle

	audioBuf bytearrayBuffer

	ChatHistory []ChatMessage

	sensor           SensorData
	proximityPresent bool
	lastHeartbeat    time.Time

	// PipelineLock serializes any LLM+TTS emission to the socket
	// (I2): pushes, the main pipeline, and the random-fact pipeline
	// all acquire it before writing tts_start/binary/text/tts_end.
	// Channel-backed (not sync.Mutex) so pushes can bound their wait
	// with TryLockTimeout per spec.md 4.8/4.7's push_timeout.
	PipelineLock TimeoutLock

	wakewordConfirmed chan struct{}

	memory memory.UserProfile
}

// ChatMessage is one turn of conversational history.
type ChatMessage struct {
	Role    string // "user" | "assistant"
	Content string
}

// New constructs an IDLE session bound to a socket.
func New(userID string, socket Socket) *Session {
	return &Session{
		UserID:            userID,
		Socket:            socket,
		personality:       "normal",
		ttsBackend:        "edge",
		state:             StateIdle,
		proximityPresent:  true,
		lastHeartbeat:     time.Now(),
		wakewordConfirmed: make(chan struct{}, 1),
		memory:            memory.UserProfile{},
		PipelineLock:      NewTimeoutLock(),
	}
}

// TimeoutLock is a binary semaphore supporting a bounded-wait acquire,
// which sync.Mutex cannot express directly.
type TimeoutLock struct {
	ch chan struct{}
}

func NewTimeoutLock() TimeoutLock {
	return TimeoutLock{ch: make(chan struct{}, 1)}
}

// Lock blocks until acquired.
func (l TimeoutLock) Lock() { l.ch <- struct{}{} }

// Unlock releases the lock. Unlocking an unlocked TimeoutLock panics,
// matching sync.Mutex's contract.
func (l TimeoutLock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("session: unlock of unlocked TimeoutLock")
	}
}

// TryLockTimeout attempts to acquire within d, returning false on
// expiry without acquiring.
func (l TimeoutLock) TryLockTimeout(d time.Duration) bool {
	select {
	case l.ch <- struct{}{}:
		return true
	case <-time.After(d):
		return false
	}
}

// State returns the current pipeline state.
func (s *Session) State() PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to newState, enforcing the transition
// table (I1). Returns *ErrInvalidTransition if the edge is not allowed.
func (s *Session) Transition(newState PipelineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == newState {
		return nil
	}
	if allowed, ok := transitions[s.state]; !ok || !allowed[newState] {
		return &ErrInvalidTransition{From: s.state, To: newState}
	}
	s.state = newState
	return nil
}

// ForceIdle resets the state to IDLE unconditionally, bypassing the
// transition table. Used only by pipeline cancellation cleanup, which
// must recover to IDLE regardless of which state the task was
// interrupted in.
func (s *Session) ForceIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
}

// SetPipeline records the handle of a running cancellable pipeline task.
func (s *Session) SetPipeline(h PipelineHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = h
}

// Pipeline returns the currently tracked pipeline handle, if any.
func (s *Session) Pipeline() PipelineHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}

// ClearPipeline drops the tracked handle.
func (s *Session) ClearPipeline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline = nil
}

// AppendAudio appends a binary frame to the audio buffer (I3: always an
// even number of bytes in, since callers hand us whole PCM frames).
func (s *Session) AppendAudio(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuf.Write(b)
}

// ClearAudio empties the audio buffer, e.g. on audio_start.
func (s *Session) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuf.Reset()
}

// TakeAudio returns the buffered PCM as float32 samples normalized to
// [-1, 1] (int16 / 32768), per spec.md 4.2.
func (s *Session) TakeAudio() []float32 {
	s.mu.Lock()
	raw := s.audioBuf.Bytes()
	s.mu.Unlock()

	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// SetWakewordConfirmed sets or clears the one-shot wake-word signal.
func (s *Session) SetWakewordConfirmed(confirmed bool) {
	select {
	case <-s.wakewordConfirmed:
	default:
	}
	if confirmed {
		s.wakewordConfirmed <- struct{}{}
	}
}

// WakewordConfirmed reports (and consumes) whether the wake word was
// confirmed since it was last checked.
func (s *Session) WakewordConfirmed() bool {
	select {
	case <-s.wakewordConfirmed:
		return true
	default:
		return false
	}
}

// AppendHistory appends a user/assistant turn, preserving I4's
// alternation by construction (callers always append in user,assistant
// pairs from run_pipeline).
func (s *Session) AppendHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChatHistory = append(s.ChatHistory, ChatMessage{Role: role, Content: content})
}

// ClearHistory drops all chat history, e.g. on personality_switch.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChatHistory = nil
}

// RecentHistory returns at most the most recent 2*maxTurns messages (I4).
func (s *Session) RecentHistory(maxTurns int) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := 2 * maxTurns
	if limit <= 0 || len(s.ChatHistory) <= limit {
		out := make([]ChatMessage, len(s.ChatHistory))
		copy(out, s.ChatHistory)
		return out
	}
	start := len(s.ChatHistory) - limit
	out := make([]ChatMessage, limit)
	copy(out, s.ChatHistory[start:])
	return out
}

// Personality returns the active personality preset.
func (s *Session) Personality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personality
}

// SetPersonality changes the active personality preset.
func (s *Session) SetPersonality(personality string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = personality
}

// Treehouse reports whether treehouse (transcription-only) mode is on.
func (s *Session) Treehouse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treehouse
}

// SetTreehouse toggles treehouse mode.
func (s *Session) SetTreehouse(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treehouse = enabled
}

// TTSBackend returns the session's selected synthesis backend.
func (s *Session) TTSBackend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttsBackend
}

// SetTTSBackend changes the session's selected synthesis backend.
func (s *Session) SetTTSBackend(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsBackend = backend
}

// Sensor returns the last cached telemetry reading.
func (s *Session) Sensor() SensorData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sensor
}

// SetSensor replaces the cached telemetry reading.
func (s *Session) SetSensor(data SensorData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensor = data
}

// ProximityPresent reports the last known user-presence reading.
func (s *Session) ProximityPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proximityPresent
}

// SetProximityPresent updates the user-presence reading.
func (s *Session) SetProximityPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proximityPresent = present
}

// LastHeartbeat returns the time of the last received ping.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// TouchHeartbeat records a ping as having just arrived.
func (s *Session) TouchHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = time.Now()
}

// Memory returns the session's user profile snapshot.
func (s *Session) Memory() memory.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

// SetMemory replaces the session's user profile.
func (s *Session) SetMemory(profile memory.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = profile
}

// bytearrayBuffer is a thin rename of bytes.Buffer kept local so the
// Session's zero value doesn't need an explicit constructor field.
type bytearrayBuffer struct {
	buf bytes.Buffer
}

func (b *bytearrayBuffer) Write(p []byte)  { b.buf.Write(p) }
func (b *bytearrayBuffer) Reset()          { b.buf.Reset() }
func (b *bytearrayBuffer) Bytes() []byte   { return b.buf.Bytes() }
