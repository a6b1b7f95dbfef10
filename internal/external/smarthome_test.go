package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecute_NotConnectedFailsFast(t *testing.T) {
	m := NewMQTTActuator(MQTTConfig{Broker: "127.0.0.1", Port: 1, TopicPrefix: "wallace"}, zap.NewNop())
	success, msg := m.Execute(context.Background(), "light/on", nil)
	require.False(t, success)
	require.Equal(t, "MQTT not connected", msg)
}

func TestExecuteScene_UnknownSceneFails(t *testing.T) {
	m := NewMQTTActuator(MQTTConfig{}, zap.NewNop())
	results := m.ExecuteScene(context.Background(), "bogus")
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}

func TestExecuteScene_SleepExpandsToTwoSteps(t *testing.T) {
	m := NewMQTTActuator(MQTTConfig{}, zap.NewNop())
	results := m.ExecuteScene(context.Background(), "sleep")
	require.Len(t, results, 2)
	require.Equal(t, "light/off", results[0].Action)
	require.Equal(t, "ac/sleep_mode", results[1].Action)
	for _, r := range results {
		require.False(t, r.Success, "not connected, so every step fails")
	}
}
