// Package router implements the Connection Router (C10): websocket
// accept/reconnect, the per-frame dispatch table, and the heartbeat
// monitor. Grounded on the teacher's internal/httpapi/server.go handleSessionWS
// (upgrade, origin check, read/write loop shape), generalized to add
// binary-frame handling the teacher's HTTP API never needed and to
// replace its audio-chunk protocol with spec.md's dispatch table.
package router

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/wallace/internal/external"
	"github.com/antoniostano/wallace/internal/memory"
	"github.com/antoniostano/wallace/internal/observability"
	"github.com/antoniostano/wallace/internal/orchestrator"
	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/registry"
	"github.com/antoniostano/wallace/internal/sensor"
	"github.com/antoniostano/wallace/internal/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultHeartbeatTimeout  = 90 * time.Second
)

// Config tunes the router's heartbeat cadence and origin policy.
type Config struct {
	AllowAnyOrigin    bool
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return c
}

// Router owns the websocket upgrade, the Registry, and every
// collaborator the dispatch table needs.
type Router struct {
	cfg          Config
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	sensorEngine *sensor.Engine
	wakeword     external.Wakeword
	smartHome    external.SmartHome
	logger       *zap.Logger
	upgrader     websocket.Upgrader

	// MemoryDataDir, when non-empty, roots the atomic per-user profile
	// files a new connection loads from on first accept (C4). Left
	// empty, sessions start with a blank UserMemory, matching spec.md's
	// "file absent -> default-valued UserMemory" load semantics.
	MemoryDataDir string
	SyncInterval  time.Duration
	// Metrics is optional; nil-safe throughout.
	Metrics *observability.Metrics
}

func New(cfg Config, reg *registry.Registry, orch *orchestrator.Orchestrator, sensorEngine *sensor.Engine, wakeword external.Wakeword, smartHome external.SmartHome, logger *zap.Logger) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		cfg:          cfg,
		registry:     reg,
		orchestrator: orch,
		sensorEngine: sensorEngine,
		wakeword:     wakeword,
		smartHome:    smartHome,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// HandleWS upgrades the connection and drives it to completion; it
// returns once the connection has fully torn down.
func (rt *Router) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "missing user_id query parameter", http.StatusBadRequest)
		return
	}

	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sock := newWSSocket(conn)
	s := session.New(userID, sock)

	var profileStore *memory.ProfileStore
	if rt.MemoryDataDir != "" {
		profileStore = memory.NewProfileStore(userID, rt.MemoryDataDir, rt.SyncInterval)
	}

	if prior, ok := rt.registry.Get(userID); ok {
		s.SetPersonality(prior.Personality())
		s.SetTreehouse(prior.Treehouse())
		s.SetTTSBackend(prior.TTSBackend())
		s.SetMemory(prior.Memory())

		rt.orchestrator.CancelPipeline(r.Context(), prior)

		_ = sock.SendText(protocol.SessionRestore{
			Type:        protocol.TypeSessionRestore,
			Personality: s.Personality(),
			Treehouse:   s.Treehouse(),
			TTSBackend:  s.TTSBackend(),
		})
	} else if profileStore != nil {
		s.SetMemory(profileStore.Load())
	}

	rt.registry.Swap(userID, s)
	if rt.Metrics != nil {
		rt.Metrics.ActiveSessions.Set(float64(rt.registry.Count()))
		rt.Metrics.SessionEvents.WithLabelValues("connected").Inc()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	heartbeatDone := rt.monitorHeartbeat(ctx, s, sock)

	rt.receiveLoop(ctx, s, sock)

	cancel()
	<-heartbeatDone

	rt.orchestrator.CancelPipeline(context.Background(), s)
	rt.registry.Delete(userID, s)
	if rt.Metrics != nil {
		rt.Metrics.ActiveSessions.Set(float64(rt.registry.Count()))
		rt.Metrics.SessionEvents.WithLabelValues("disconnected").Inc()
	}

	if profileStore != nil && profileStore.HasChanges(s.Memory()) {
		if err := profileStore.Save(s.Memory()); err != nil {
			rt.logger.Error("memory save failed", zap.String("user_id", userID), zap.Error(err))
			if rt.Metrics != nil {
				rt.Metrics.MemorySaveFailure.Inc()
			}
		} else {
			profileStore.MarkSynced(s.Memory())
		}
	}
}

// receiveLoop reads frames until the socket errs or ctx is cancelled,
// dispatching each one per spec.md 4.10's table.
func (rt *Router) receiveLoop(ctx context.Context, s *session.Session, sock *wsSocket) {
	conn := sock.conn
	conn.SetReadLimit(2 << 20)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(rt.cfg.HeartbeatTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.AppendAudio(data)
		case websocket.TextMessage:
			parsed, err := protocol.ParseClientMessage(data)
			if err != nil {
				rt.logger.Debug("dropping malformed client message", zap.String("user_id", s.UserID), zap.Error(err))
				continue
			}
			rt.dispatch(ctx, s, parsed)
		}
	}
}

// dispatch implements the per-type action table of spec.md 4.10.
func (rt *Router) dispatch(ctx context.Context, s *session.Session, msg any) {
	switch m := msg.(type) {
	case protocol.Ping:
		s.TouchHeartbeat()
		_ = s.Socket.SendText(protocol.Pong{Type: protocol.TypePong})

	case protocol.AudioStart:
		rt.orchestrator.OnAudioStart(ctx, s)

	case protocol.AudioEnd:
		rt.orchestrator.OnAudioEnd(ctx, s)

	case protocol.WakewordVerify:
		confirmed := false
		if rt.wakeword != nil {
			confirmed = rt.wakeword.Verify(ctx, m.Audio)
		}
		_ = s.Socket.SendText(protocol.WakewordResult{Type: protocol.TypeWakewordResult, Confirmed: confirmed})
		if confirmed {
			s.SetWakewordConfirmed(true)
		}

	case protocol.Sensor:
		if rt.sensorEngine != nil {
			rt.sensorEngine.Update(s, m)
			for _, alert := range rt.sensorEngine.CheckAlerts(s) {
				_ = s.Socket.SendText(protocol.SensorAlert{Type: protocol.TypeSensorAlert, Alert: alert.Kind, Suggestion: alert.Suggestion})
			}
		}

	case protocol.Proximity:
		if rt.sensorEngine != nil {
			rt.sensorEngine.UpdateProximity(s, m)
		}

	case protocol.DeviceState:
		// Ignored for now; spec.md 4.10 leaves room to store this later.

	case protocol.Event:
		rt.dispatchEvent(ctx, s, m)

	case protocol.LocalCmd:
		success, message := false, "smart-home actuator not configured"
		if rt.smartHome != nil {
			success, message = rt.smartHome.Execute(ctx, m.Action, nil)
		}
		_ = s.Socket.SendText(protocol.CommandResult{Type: protocol.TypeCommandResult, Action: m.Action, Success: success, Message: message})

	case protocol.Image:
		// Ignored for now, per spec.md 4.10.

	case protocol.Config:
		if m.TTSBackend != "" {
			s.SetTTSBackend(m.TTSBackend)
		}
	}
}

func (rt *Router) dispatchEvent(ctx context.Context, s *session.Session, m protocol.Event) {
	switch m.Event {
	case protocol.EventPersonalitySwitch:
		if personality, ok := m.Value.(string); ok && personality != "" {
			s.SetPersonality(personality)
			s.ClearHistory()
		}
	case protocol.EventTreehouseMode:
		if enabled, ok := m.Value.(bool); ok {
			s.SetTreehouse(enabled)
		}
	case protocol.EventShake:
		go rt.orchestrator.PushRandomFact(ctx, s)
	case protocol.EventTouch:
		// no-op
	}
}

// monitorHeartbeat closes the socket if last_heartbeat has fallen
// behind HEARTBEAT_TIMEOUT, per spec.md 4.11. Returns a channel closed
// once the monitor has stopped.
func (rt *Router) monitorHeartbeat(ctx context.Context, s *session.Session, sock *wsSocket) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(rt.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(s.LastHeartbeat()) > rt.cfg.HeartbeatTimeout {
					rt.logger.Info("heartbeat timeout, closing socket", zap.String("user_id", s.UserID))
					_ = sock.Close()
					return
				}
			}
		}
	}()
	return done
}

// wsSocket adapts a *websocket.Conn to session.Socket, serializing
// every write behind one mutex since gorilla/websocket connections are
// not safe for concurrent writers.
type wsSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSSocket(conn *websocket.Conn) *wsSocket {
	return &wsSocket{conn: conn}
}

func (w *wsSocket) SendText(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (w *wsSocket) SendBytes(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (w *wsSocket) Close() error {
	return w.conn.Close()
}
