package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// sceneStep is one command issued as part of a named scene.
type sceneStep struct {
	Device  string
	Action  string
	Payload map[string]any
}

// scenes mirrors original_source/smarthome/mqtt.py's SCENES table.
var scenes = map[string][]sceneStep{
	"sleep": {
		{Device: "light", Action: "off"},
		{Device: "ac", Action: "sleep_mode"},
	},
	"wakeup": {
		{Device: "light", Action: "on", Payload: map[string]any{"brightness": 50}},
	},
}

// MQTTConfig configures the broker connection and topic namespace.
type MQTTConfig struct {
	Broker      string
	Port        int
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// MQTTActuator publishes smart-home commands to an MQTT broker. Runs in
// degraded mode (every command fails fast) when the broker is
// unreachable at connect time, matching the teacher/original's
// "never block startup on a flaky broker" posture.
type MQTTActuator struct {
	cfg    MQTTConfig
	logger *zap.Logger

	mu        sync.RWMutex
	client    mqtt.Client
	connected bool
}

func NewMQTTActuator(cfg MQTTConfig, logger *zap.Logger) *MQTTActuator {
	return &MQTTActuator{cfg: cfg, logger: logger}
}

// Connect attempts to establish the broker connection. A failure is
// logged and leaves the actuator in degraded mode; it does not error,
// matching original_source's connect() which never propagates broker
// failures to startup.
func (m *MQTTActuator) Connect(ctx context.Context) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port)).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if m.cfg.ClientID != "" {
		opts.SetClientID(m.cfg.ClientID)
	}
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		m.logger.Warn("mqtt connect timed out, running in degraded mode")
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt connection failed, running in degraded mode", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.client = client
	m.connected = true
	m.mu.Unlock()
	m.logger.Info("mqtt connected", zap.String("broker", m.cfg.Broker), zap.Int("port", m.cfg.Port))
}

func (m *MQTTActuator) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.client = nil
	m.connected = false
}

func (m *MQTTActuator) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Execute publishes a single command and reports (success, message).
func (m *MQTTActuator) Execute(_ context.Context, action string, payload map[string]any) (bool, string) {
	m.mu.RLock()
	client, connected := m.client, m.connected
	m.mu.RUnlock()
	if !connected {
		return false, "MQTT not connected"
	}

	topic := fmt.Sprintf("%s/%s", strings.TrimRight(m.cfg.TopicPrefix, "/"), action)
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err.Error()
	}

	token := client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(3 * time.Second) {
		return false, "publish timed out"
	}
	if err := token.Error(); err != nil {
		m.logger.Error("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		return false, err.Error()
	}
	return true, fmt.Sprintf("%s executed", action)
}

// ExecuteScene runs every step of a named scene in order, publishing
// each as device/action.
func (m *MQTTActuator) ExecuteScene(ctx context.Context, scene string) []SceneResult {
	steps, ok := scenes[scene]
	if !ok {
		return []SceneResult{{Action: scene, Success: false, Message: fmt.Sprintf("unknown scene: %s", scene)}}
	}

	results := make([]SceneResult, 0, len(steps))
	for _, step := range steps {
		action := fmt.Sprintf("%s/%s", step.Device, step.Action)
		success, msg := m.Execute(ctx, action, step.Payload)
		results = append(results, SceneResult{Action: action, Success: success, Message: msg})
	}
	return results
}
