// Package config loads the hierarchical runtime settings for the voice
// companion core: server, asr, llm, tts, mqtt, care, sensor, and weather
// sections, each overridable by an environment variable of the form
// WALLACE_<SECTION>__<FIELD>. Adopts spf13/viper over the teacher's
// hand-rolled envOrDefault/durationFromEnv parsing (internal/config
// pre-transform): spec.md §6 calls for nested-section env overrides,
// which is exactly viper's SetEnvKeyReplacer + AutomaticEnv idiom.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "WALLACE"

// ServerConfig controls the websocket/HTTP listener and router.
type ServerConfig struct {
	BindAddr          string        `mapstructure:"bind_addr"`
	AllowAnyOrigin    bool          `mapstructure:"allow_any_origin"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	MetricsNamespace  string        `mapstructure:"metrics_namespace"`
	DataDir           string        `mapstructure:"data_dir"`
	// DatabaseURL, when set, selects the Postgres-backed episodic turn
	// store; left empty, memory.NewStore falls back to an in-memory one.
	DatabaseURL string `mapstructure:"database_url"`
}

// ASRConfig carries the voice-activity threshold into
// orchestrator.Config. The pipeline's speech check is the ASR backend's
// own HasSpeech with that backend's fixed threshold; VADThreshold is not
// applied by it.
type ASRConfig struct {
	VADThreshold float64 `mapstructure:"vad_threshold"`
}

// LLMConfig points at the single HTTP dialog-model backend (§4.12).
type LLMConfig struct {
	URL             string `mapstructure:"url"`
	Model           string `mapstructure:"model"`
	MaxHistoryTurns int    `mapstructure:"max_history_turns"`
}

// TTSConfig configures the two synthesis backends and their selection.
// "edge" is an on-device worker subprocess (ASR+TTS); "cloud-alt" is a
// hosted HTTP backend. Both implement external.ASR and external.TTS;
// the edge worker doubles as the main pipeline's ASR collaborator.
type TTSConfig struct {
	EdgeWorkerPython string `mapstructure:"edge_worker_python"`
	EdgeWorkerScript string `mapstructure:"edge_worker_script"`
	EdgeVoice        string `mapstructure:"edge_voice"`
	CloudAltURL      string `mapstructure:"cloud_alt_url"`
	CloudAltAPIKey   string `mapstructure:"cloud_alt_api_key"`
	CloudAltVoiceID  string `mapstructure:"cloud_alt_voice_id"`
	DefaultBackend   string `mapstructure:"default_backend"`
}

// MQTTConfig configures the smart-home actuator collaborator.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CareConfig tunes the scheduled-push jobs and push contention window.
type CareConfig struct {
	PushTimeout       time.Duration `mapstructure:"push_timeout"`
	SedentaryInterval time.Duration `mapstructure:"sedentary_interval"`
	MorningTime       string        `mapstructure:"morning_time"`
	EveningTime       string        `mapstructure:"evening_time"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
}

// SensorConfig tunes the telemetry thresholds and alert debounce window.
type SensorConfig struct {
	DarkThreshold float64       `mapstructure:"dark_threshold"`
	LightBright   float64       `mapstructure:"light_bright"`
	AQThreshold   float64       `mapstructure:"aq_threshold"`
	TempHigh      float64       `mapstructure:"temp_high"`
	TempLow       float64       `mapstructure:"temp_low"`
	AlertCooldown time.Duration `mapstructure:"alert_cooldown"`
}

// WeatherConfig points at the external weather provider (§4.12).
type WeatherConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
	City   string `mapstructure:"city"`
}

// Config is the fully-loaded, section-organized runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	ASR     ASRConfig     `mapstructure:"asr"`
	LLM     LLMConfig     `mapstructure:"llm"`
	TTS     TTSConfig     `mapstructure:"tts"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Care    CareConfig    `mapstructure:"care"`
	Sensor  SensorConfig  `mapstructure:"sensor"`
	Weather WeatherConfig `mapstructure:"weather"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_addr", ":8080")
	v.SetDefault("server.allow_any_origin", false)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.heartbeat_timeout", 90*time.Second)
	v.SetDefault("server.metrics_namespace", "wallace")
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.database_url", "")

	v.SetDefault("asr.vad_threshold", 0.5)

	v.SetDefault("llm.url", "http://localhost:8000/v1/chat/completions")
	v.SetDefault("llm.model", "default")
	v.SetDefault("llm.max_history_turns", 10)

	v.SetDefault("tts.edge_worker_python", "python3")
	v.SetDefault("tts.edge_worker_script", "")
	v.SetDefault("tts.edge_voice", "zh-CN-XiaoxiaoNeural")
	v.SetDefault("tts.default_backend", "edge")
	v.SetDefault("tts.cloud_alt_voice_id", "")

	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "wallace-core")
	v.SetDefault("mqtt.topic_prefix", "home")

	v.SetDefault("care.push_timeout", 30*time.Second)
	v.SetDefault("care.sedentary_interval", 2*time.Hour)
	v.SetDefault("care.morning_time", "07:30")
	v.SetDefault("care.evening_time", "22:00")
	v.SetDefault("care.sync_interval", 300*time.Second)

	v.SetDefault("sensor.dark_threshold", 50.0)
	v.SetDefault("sensor.light_bright", 500.0)
	v.SetDefault("sensor.aq_threshold", 200.0)
	v.SetDefault("sensor.temp_high", 35.0)
	v.SetDefault("sensor.temp_low", 10.0)
	v.SetDefault("sensor.alert_cooldown", 300*time.Second)

	v.SetDefault("weather.api_url", "https://api.map.baidu.com/weather/v1/")
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.city", "")
}

// Load builds a fresh viper instance, applies defaults, then layers on
// any WALLACE_<SECTION>__<FIELD> environment overrides (double
// underscore separates section from field, matching spec.md §6's
// "<PREFIX>_<SECTION>__<FIELD>" contract).
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Server.HeartbeatTimeout <= cfg.Server.HeartbeatInterval {
		return Config{}, fmt.Errorf("config: server.heartbeat_timeout must exceed server.heartbeat_interval")
	}
	if cfg.ASR.VADThreshold < 0 {
		return Config{}, fmt.Errorf("config: asr.vad_threshold must be >= 0")
	}
	if cfg.LLM.MaxHistoryTurns <= 0 {
		return Config{}, fmt.Errorf("config: llm.max_history_turns must be positive")
	}

	return cfg, nil
}

// bindEnv registers every known key explicitly; viper's AutomaticEnv
// alone only resolves keys that have already been asked for at least
// once (via Get/Unmarshal), which nested struct unmarshalling satisfies,
// but binding explicitly keeps the override surface self-documenting.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"server.bind_addr", "server.allow_any_origin", "server.shutdown_timeout",
		"server.heartbeat_interval", "server.heartbeat_timeout", "server.metrics_namespace",
		"server.data_dir", "server.database_url",
		"asr.vad_threshold",
		"llm.url", "llm.model", "llm.max_history_turns",
		"tts.edge_worker_python", "tts.edge_worker_script", "tts.edge_voice",
		"tts.cloud_alt_url", "tts.cloud_alt_api_key", "tts.cloud_alt_voice_id", "tts.default_backend",
		"mqtt.broker", "mqtt.port", "mqtt.client_id", "mqtt.username", "mqtt.password", "mqtt.topic_prefix",
		"care.push_timeout", "care.sedentary_interval", "care.morning_time", "care.evening_time", "care.sync_interval",
		"sensor.dark_threshold", "sensor.light_bright", "sensor.aq_threshold", "sensor.temp_high", "sensor.temp_low", "sensor.alert_cooldown",
		"weather.api_url", "weather.api_key", "weather.city",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}
