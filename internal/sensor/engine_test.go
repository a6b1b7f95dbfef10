package sensor

import (
	"testing"
	"time"

	"github.com/antoniostano/wallace/internal/protocol"
	"github.com/antoniostano/wallace/internal/session"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestUpdate_OmittedFieldsLeaveCacheUnchanged(t *testing.T) {
	e := New(DefaultThresholds())
	s := session.New("u1", nil)

	e.Update(s, protocol.Sensor{Temp: f(20), Humidity: f(50), Light: f(100), AirQuality: f(10)})
	e.Update(s, protocol.Sensor{Temp: f(22)})

	require.Equal(t, 22.0, s.Sensor().Temp)
	require.Equal(t, 50.0, s.Sensor().Humidity)
}

func TestContext_EmptyUntilFirstReading(t *testing.T) {
	e := New(DefaultThresholds())
	s := session.New("u1", nil)
	require.Empty(t, e.Context(s))

	e.Update(s, protocol.Sensor{Temp: f(20), Humidity: f(50), Light: f(30), AirQuality: f(250)})
	ctx := e.Context(s)
	require.Contains(t, ctx, "当前环境：")
	require.Contains(t, ctx, "光线较暗")
	require.Contains(t, ctx, "空气质量较差")
}

func TestCheckAlerts_DebouncedAcrossCooldown(t *testing.T) {
	e := New(Thresholds{AirQualityThreshold: 200, LightDarkThreshold: 50, LightBrightCutoff: 500, TempHigh: 35, TempLow: 10, AlertCooldown: time.Hour})
	s := session.New("u1", nil)
	e.Update(s, protocol.Sensor{Temp: f(20), Humidity: f(50), Light: f(300), AirQuality: f(250)})

	first := e.CheckAlerts(s)
	require.Len(t, first, 1)
	require.Equal(t, "air_quality_bad", first[0].Kind)

	second := e.CheckAlerts(s)
	require.Empty(t, second, "debounced within cooldown")
}

func TestCheckAlerts_DebounceIsProcessWideNotPerSession(t *testing.T) {
	e := New(Thresholds{AirQualityThreshold: 200, LightDarkThreshold: 50, LightBrightCutoff: 500, TempHigh: 35, TempLow: 10, AlertCooldown: time.Hour})
	a := session.New("a", nil)
	b := session.New("b", nil)
	e.Update(a, protocol.Sensor{Temp: f(20), Humidity: f(50), Light: f(300), AirQuality: f(250)})
	e.Update(b, protocol.Sensor{Temp: f(20), Humidity: f(50), Light: f(300), AirQuality: f(250)})

	require.Len(t, e.CheckAlerts(a), 1)
	require.Empty(t, e.CheckAlerts(b), "engine-wide debounce table suppresses b's identical alert too")
}
