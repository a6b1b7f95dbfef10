// Package sensor implements the sensor engine (C3): telemetry caching,
// LLM context rendering, and debounced alerts. Grounded on
// original_source/sensor.py; the debounce table is process-wide by
// design (see SPEC_FULL.md §9 design notes), not per-session.
package sensor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/wallace/internal/observability"
	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/session"
)

// Thresholds configures the engine's alert predicates and cooldown.
// Defaults mirror original_source/config.py's SensorConfig.
type Thresholds struct {
	AirQualityThreshold float64
	LightDarkThreshold  float64
	LightBrightCutoff   float64
	TempHigh            float64
	TempLow             float64
	AlertCooldown       time.Duration
}

// DefaultThresholds matches the original implementation's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AirQualityThreshold: 200,
		LightDarkThreshold:  50,
		LightBrightCutoff:   500,
		TempHigh:            35,
		TempLow:             10,
		AlertCooldown:       300 * time.Second,
	}
}

// Alert is one debounced alert instance.
type Alert struct {
	Kind       string
	Suggestion string
}

// Engine caches telemetry into Sessions and tracks a process-wide
// per-kind debounce table.
type Engine struct {
	thresholds Thresholds

	mu            sync.Mutex
	lastAlertTime map[string]time.Time

	// Metrics is optional; nil-safe throughout.
	Metrics *observability.Metrics
}

func New(thresholds Thresholds) *Engine {
	return &Engine{
		thresholds:    thresholds,
		lastAlertTime: make(map[string]time.Time),
	}
}

// Update copies any provided fields into the session's SensorData;
// omitted fields leave the cached value unchanged.
func (e *Engine) Update(s *session.Session, msg protocol.Sensor) {
	cache := s.Sensor()
	if msg.Temp != nil {
		cache.Temp = *msg.Temp
	}
	if msg.Humidity != nil {
		cache.Humidity = *msg.Humidity
	}
	if msg.Light != nil {
		cache.Light = *msg.Light
	}
	if msg.AirQuality != nil {
		cache.AirQuality = *msg.AirQuality
	}
	cache.UpdatedAt = time.Now()
	s.SetSensor(cache)
}

// UpdateProximity sets proximity_present from user_present, defaulting
// to true when the field is absent.
func (e *Engine) UpdateProximity(s *session.Session, msg protocol.Proximity) {
	if msg.UserPresent != nil {
		s.SetProximityPresent(*msg.UserPresent)
		return
	}
	s.SetProximityPresent(true)
}

// Context renders the sensor-context system-prompt fragment, or "" if
// no reading has ever been received.
func (e *Engine) Context(s *session.Session) string {
	cache := s.Sensor()
	if cache.UpdatedAt.IsZero() {
		return ""
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("室温%.0f°C", cache.Temp))
	parts = append(parts, fmt.Sprintf("湿度%.0f%%", cache.Humidity))

	switch {
	case cache.Light < e.thresholds.LightDarkThreshold:
		parts = append(parts, "光线较暗")
	case cache.Light > e.thresholds.LightBrightCutoff:
		parts = append(parts, "光线明亮")
	default:
		parts = append(parts, fmt.Sprintf("光线%.0flux", cache.Light))
	}

	if cache.AirQuality > e.thresholds.AirQualityThreshold {
		parts = append(parts, "空气质量较差")
	} else {
		parts = append(parts, "空气质量良好")
	}

	return "当前环境：" + strings.Join(parts, "，")
}

// CheckAlerts evaluates the four predicates in a fixed order, applying
// per-kind debounce across the whole engine (not per session).
func (e *Engine) CheckAlerts(s *session.Session) []Alert {
	cache := s.Sensor()
	now := time.Now()

	type check struct {
		kind       string
		triggered  bool
		suggestion string
	}
	checks := []check{
		{"air_quality_bad", cache.AirQuality > e.thresholds.AirQualityThreshold, "空气质量不太好，建议开窗通通风"},
		{"light_too_dark", cache.Light < e.thresholds.LightDarkThreshold, "光线有点暗，要不要开个灯"},
		{"temp_too_high", cache.Temp > e.thresholds.TempHigh, fmt.Sprintf("温度有点高(%.0f°C)，注意降温", cache.Temp)},
		{"temp_too_low", cache.Temp < e.thresholds.TempLow, fmt.Sprintf("温度有点低(%.0f°C)，注意保暖", cache.Temp)},
	}

	var out []Alert
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range checks {
		if !c.triggered {
			continue
		}
		if last, ok := e.lastAlertTime[c.kind]; ok && now.Sub(last) < e.thresholds.AlertCooldown {
			continue
		}
		e.lastAlertTime[c.kind] = now
		out = append(out, Alert{Kind: c.kind, Suggestion: c.suggestion})
		if e.Metrics != nil {
			e.Metrics.ObserveSensorAlert(c.kind)
		}
	}
	return out
}
