package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClientMessage_AudioLifecycle(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"audio_start"}`))
	require.NoError(t, err)
	require.Equal(t, AudioStart{Type: TypeAudioStart}, msg)

	msg, err = ParseClientMessage([]byte(`{"type":"audio_end"}`))
	require.NoError(t, err)
	require.Equal(t, AudioEnd{Type: TypeAudioEnd}, msg)
}

func TestParseClientMessage_Sensor(t *testing.T) {
	raw := []byte(`{"type":"sensor","temp":28.5,"humidity":60,"light":40,"air_quality":210}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	s, ok := msg.(Sensor)
	require.True(t, ok)
	require.NotNil(t, s.Temp)
	require.Equal(t, 28.5, *s.Temp)
}

func TestParseClientMessage_SensorPartialFieldsOmitted(t *testing.T) {
	raw := []byte(`{"type":"sensor","temp":28.5}`)
	msg, err := ParseClientMessage(raw)
	require.NoError(t, err)
	s := msg.(Sensor)
	require.NotNil(t, s.Temp)
	require.Nil(t, s.Humidity)
	require.Nil(t, s.Light)
	require.Nil(t, s.AirQuality)
}

func TestParseClientMessage_EventRequiresKnownKind(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"event","event":"bogus"}`))
	require.Error(t, err)

	msg, err := ParseClientMessage([]byte(`{"type":"event","event":"shake"}`))
	require.NoError(t, err)
	require.Equal(t, Event{Type: TypeEvent, Event: EventShake}, msg)
}

func TestParseClientMessage_WakewordVerifyRequiresAudio(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wakeword_verify"}`))
	require.Error(t, err)

	msg, err := ParseClientMessage([]byte(`{"type":"wakeword_verify","audio":"AAA="}`))
	require.NoError(t, err)
	require.Equal(t, WakewordVerify{Type: TypeWakewordVerify, Audio: "AAA="}, msg)
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"nonsense"}`))
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	_, err := ParseClientMessage([]byte(`not json`))
	require.Error(t, err)
}

// Outbound messages round-trip through JSON unchanged: a fixed point
// of marshal -> unmarshal -> marshal.
func TestOutboundRoundTrip(t *testing.T) {
	cases := []any{
		Pong{Type: TypePong},
		SessionRestore{Type: TypeSessionRestore, Personality: "tsundere", Treehouse: true, TTSBackend: "cosyvoice"},
		TTSStart{Type: TypeTTSStart, Mood: "thinking"},
		Text{Type: TypeText, Content: "你好！", Partial: false, Mood: "happy"},
		SensorAlert{Type: TypeSensorAlert, Alert: "air_quality_bad", Suggestion: "开窗通通风"},
	}
	for _, c := range cases {
		b1, err := json.Marshal(c)
		require.NoError(t, err)

		generic := map[string]any{}
		require.NoError(t, json.Unmarshal(b1, &generic))

		b2, err := json.Marshal(generic)
		require.NoError(t, err)

		var back1, back2 map[string]any
		require.NoError(t, json.Unmarshal(b1, &back1))
		require.NoError(t, json.Unmarshal(b2, &back2))
		require.Equal(t, back1, back2)
	}
}
