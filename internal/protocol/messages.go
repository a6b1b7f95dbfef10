// Package protocol defines the device<->server message set and its
// validating codec.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a websocket JSON payload variant.
type MessageType string

const (
	TypePing           MessageType = "ping"
	TypeAudioStart      MessageType = "audio_start"
	TypeAudioEnd        MessageType = "audio_end"
	TypeWakewordVerify  MessageType = "wakeword_verify"
	TypeSensor          MessageType = "sensor"
	TypeProximity       MessageType = "proximity"
	TypeDeviceState     MessageType = "device_state"
	TypeEvent           MessageType = "event"
	TypeLocalCmd        MessageType = "local_cmd"
	TypeImage           MessageType = "image"
	TypeConfig          MessageType = "config"

	TypePong           MessageType = "pong"
	TypeSessionRestore MessageType = "session_restore"
	TypeWakewordResult MessageType = "wakeword_result"
	TypeTTSStart       MessageType = "tts_start"
	TypeTTSCancel      MessageType = "tts_cancel"
	TypeTTSEnd         MessageType = "tts_end"
	TypeText           MessageType = "text"
	TypeCare           MessageType = "care"
	TypeSensorAlert    MessageType = "sensor_alert"
	TypeCommandResult  MessageType = "command_result"
	TypeMemorySync     MessageType = "memory_sync"
)

// Event kinds carried by the inbound "event" message.
const (
	EventPersonalitySwitch = "personality_switch"
	EventTreehouseMode     = "treehouse_mode"
	EventShake             = "shake"
	EventTouch             = "touch"
)

// ErrUnsupportedType is returned by ParseClientMessage for an unknown
// discriminator; a missing one yields a separate "missing type field"
// error.
var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope is the minimal shape every message carries.
type Envelope struct {
	Type MessageType `json:"type"`
}

// --- Inbound (device -> server) ---

type Ping struct {
	Type MessageType `json:"type"`
}

type AudioStart struct {
	Type MessageType `json:"type"`
}

type AudioEnd struct {
	Type MessageType `json:"type"`
}

type WakewordVerify struct {
	Type  MessageType `json:"type"`
	Audio string      `json:"audio"`
}

type Sensor struct {
	Type        MessageType `json:"type"`
	Temp        *float64    `json:"temp,omitempty"`
	Humidity    *float64    `json:"humidity,omitempty"`
	Light       *float64    `json:"light,omitempty"`
	AirQuality  *float64    `json:"air_quality,omitempty"`
}

type Proximity struct {
	Type        MessageType `json:"type"`
	Distance    float64     `json:"distance"`
	UserPresent *bool       `json:"user_present,omitempty"`
}

type DeviceState struct {
	Type       MessageType `json:"type"`
	BatteryPct int         `json:"battery_pct"`
	PowerMode  string      `json:"power_mode"`
	WifiRSSI   int         `json:"wifi_rssi"`
}

type Event struct {
	Type  MessageType `json:"type"`
	Event string      `json:"event"`
	Value any         `json:"value,omitempty"`
}

type LocalCmd struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type Image struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

type Config struct {
	Type       MessageType `json:"type"`
	TTSBackend string      `json:"tts_backend"`
}

// --- Outbound (server -> device) ---

type Pong struct {
	Type MessageType `json:"type"`
}

type SessionRestore struct {
	Type        MessageType `json:"type"`
	Personality string      `json:"personality"`
	Treehouse   bool        `json:"treehouse"`
	TTSBackend  string      `json:"tts_backend"`
}

type WakewordResult struct {
	Type      MessageType `json:"type"`
	Confirmed bool        `json:"confirmed"`
}

type TTSStart struct {
	Type MessageType `json:"type"`
	Mood string      `json:"mood"`
}

type TTSCancel struct {
	Type MessageType `json:"type"`
}

type TTSEnd struct {
	Type MessageType `json:"type"`
}

type Text struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	Partial bool        `json:"partial"`
	Mood    string      `json:"mood,omitempty"`
}

type Care struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	Mood    string      `json:"mood"`
}

type SensorAlert struct {
	Type       MessageType `json:"type"`
	Alert      string      `json:"alert"`
	Suggestion string      `json:"suggestion"`
}

type CommandResult struct {
	Type    MessageType `json:"type"`
	Action  string      `json:"action"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
}

type MemorySync struct {
	Type MessageType    `json:"type"`
	Data map[string]any `json:"data"`
}

// clientInbound is a permissive superset used to sniff the discriminator
// and pull out fields before validating per type, mirroring the
// teacher's parse-then-validate idiom.
type clientInbound struct {
	Type        MessageType `json:"type"`
	Audio       string      `json:"audio"`
	Temp        *float64    `json:"temp"`
	Humidity    *float64    `json:"humidity"`
	Light       *float64    `json:"light"`
	AirQuality  *float64    `json:"air_quality"`
	Distance    float64     `json:"distance"`
	UserPresent *bool       `json:"user_present"`
	BatteryPct  int         `json:"battery_pct"`
	PowerMode   string      `json:"power_mode"`
	WifiRSSI    int         `json:"wifi_rssi"`
	Event       string      `json:"event"`
	Value       any         `json:"value"`
	Action      string      `json:"action"`
	Data        string      `json:"data"`
	TTSBackend  string      `json:"tts_backend"`
}

// ParseClientMessage validates and decodes one inbound text frame.
// Unknown type or a missing required field is reported as an error;
// callers are expected to log and discard rather than close the
// connection (MalformedMessage, never fatal).
func ParseClientMessage(raw []byte) (any, error) {
	var in clientInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch in.Type {
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeAudioStart:
		return AudioStart{Type: TypeAudioStart}, nil
	case TypeAudioEnd:
		return AudioEnd{Type: TypeAudioEnd}, nil
	case TypeWakewordVerify:
		if in.Audio == "" {
			return nil, errors.New("invalid wakeword_verify: missing audio")
		}
		return WakewordVerify{Type: TypeWakewordVerify, Audio: in.Audio}, nil
	case TypeSensor:
		return Sensor{
			Type:       TypeSensor,
			Temp:       in.Temp,
			Humidity:   in.Humidity,
			Light:      in.Light,
			AirQuality: in.AirQuality,
		}, nil
	case TypeProximity:
		return Proximity{
			Type:        TypeProximity,
			Distance:    in.Distance,
			UserPresent: in.UserPresent,
		}, nil
	case TypeDeviceState:
		return DeviceState{
			Type:       TypeDeviceState,
			BatteryPct: in.BatteryPct,
			PowerMode:  in.PowerMode,
			WifiRSSI:   in.WifiRSSI,
		}, nil
	case TypeEvent:
		if in.Event == "" {
			return nil, errors.New("invalid event: missing event name")
		}
		switch in.Event {
		case EventPersonalitySwitch, EventTreehouseMode, EventShake, EventTouch:
		default:
			return nil, fmt.Errorf("invalid event: unknown event %q", in.Event)
		}
		return Event{Type: TypeEvent, Event: in.Event, Value: in.Value}, nil
	case TypeLocalCmd:
		if in.Action == "" {
			return nil, errors.New("invalid local_cmd: missing action")
		}
		return LocalCmd{Type: TypeLocalCmd, Action: in.Action}, nil
	case TypeImage:
		if in.Data == "" {
			return nil, errors.New("invalid image: missing data")
		}
		return Image{Type: TypeImage, Data: in.Data}, nil
	case TypeConfig:
		return Config{Type: TypeConfig, TTSBackend: in.TTSBackend}, nil
	case "":
		return nil, errors.New("missing type field")
	default:
		return nil, ErrUnsupportedType
	}
}
