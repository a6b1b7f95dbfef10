package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/wallace/internal/external"
	"github.com/antoniostano/wallace/internal/orchestrator"
	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/registry"
	"github.com/antoniostano/wallace/internal/sensor"
	"github.com/antoniostano/wallace/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*Router, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	tts := external.NewMockTTS()
	orch := orchestrator.New(
		external.NewMockASR(),
		external.NewMockLLM(),
		external.TTSBackends{Edge: tts, CloudAlt: tts},
		nil,
		zap.NewNop(),
		orchestrator.Config{},
	)
	rt := New(Config{AllowAnyOrigin: true, HeartbeatInterval: 20 * time.Millisecond, HeartbeatTimeout: 60 * time.Millisecond}, reg, orch, sensor.New(sensor.DefaultThresholds()), nil, nil, zap.NewNop())
	return rt, reg
}

func dialWS(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHandleWS_MissingUserIDRejected(t *testing.T) {
	rt, _ := newTestRouter(t)
	server := httptest.NewServer(http.HandlerFunc(rt.HandleWS))
	defer server.Close()

	resp, err := http.Get(strings.Replace(server.URL, "http", "http", 1))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleWS_PingReceivesPong(t *testing.T) {
	rt, reg := newTestRouter(t)
	server := httptest.NewServer(http.HandlerFunc(rt.HandleWS))
	defer server.Close()

	conn := dialWS(t, server, "alice")
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, ok := reg.Get("alice")
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var resp map[string]any
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "pong", resp["type"])
}

func TestHandleWS_ReconnectCancelsOldSessionAndSendsRestore(t *testing.T) {
	rt, reg := newTestRouter(t)
	server := httptest.NewServer(http.HandlerFunc(rt.HandleWS))
	defer server.Close()

	first := dialWS(t, server, "bob")
	require.Eventually(t, func() bool {
		_, ok := reg.Get("bob")
		return ok
	}, time.Second, 5*time.Millisecond)

	firstSession, _ := reg.Get("bob")
	firstSession.SetPersonality("tsundere")
	firstSession.SetTTSBackend("cloud-alt")

	second := dialWS(t, server, "bob")
	defer second.Close()

	var restore map[string]any
	require.NoError(t, second.ReadJSON(&restore))
	require.Equal(t, "session_restore", restore["type"])
	require.Equal(t, "tsundere", restore["personality"])
	require.Equal(t, "cloud-alt", restore["tts_backend"])

	// session_restore is sent before the registry swap, so wait for it.
	require.Eventually(t, func() bool {
		cur, ok := reg.Get("bob")
		return ok && cur != firstSession
	}, time.Second, 5*time.Millisecond)

	current, ok := reg.Get("bob")
	require.True(t, ok)
	require.NotSame(t, firstSession, current)

	_ = first.Close()
}

func TestHandleWS_HeartbeatTimeoutClosesSocket(t *testing.T) {
	rt, reg := newTestRouter(t)
	server := httptest.NewServer(http.HandlerFunc(rt.HandleWS))
	defer server.Close()

	conn := dialWS(t, server, "carol")
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, ok := reg.Get("carol")
		return ok
	}, time.Second, 5*time.Millisecond)

	// Never send a ping; the heartbeat monitor should close the socket
	// once HeartbeatTimeout elapses.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

type recordingSocket struct {
	texts []any
}

func (r *recordingSocket) SendText(v any) error { r.texts = append(r.texts, v); return nil }
func (r *recordingSocket) SendBytes([]byte) error { return nil }
func (r *recordingSocket) Close() error           { return nil }

func TestDispatch_PersonalitySwitchClearsHistory(t *testing.T) {
	rt, _ := newTestRouter(t)
	sock := &recordingSocket{}
	s := session.New("dan", sock)
	s.AppendHistory("user", "hi")

	rt.dispatch(context.Background(), s, protocol.Event{
		Type: protocol.TypeEvent, Event: protocol.EventPersonalitySwitch, Value: "cool",
	})

	require.Equal(t, "cool", s.Personality())
	require.Empty(t, s.RecentHistory(10))
}

func TestDispatch_LocalCmdWithNoSmartHomeReportsFailure(t *testing.T) {
	rt, _ := newTestRouter(t)
	sock := &recordingSocket{}
	s := session.New("erin", sock)

	rt.dispatch(context.Background(), s, protocol.LocalCmd{Type: protocol.TypeLocalCmd, Action: "light/on"})

	require.Len(t, sock.texts, 1)
	result, ok := sock.texts[0].(protocol.CommandResult)
	require.True(t, ok)
	require.False(t, result.Success)
	require.Equal(t, "light/on", result.Action)
}
