// Command wallace runs the voice-companion core: it wires the
// configuration, logger, metrics, memory stores, external ASR/LLM/TTS/
// smart-home/weather collaborators, the sensor engine, the pipeline
// orchestrator, the connection registry, the proactive care pusher and
// scheduler, and the websocket/HTTP router into one listening process.
// Grounded on the teacher's cmd/samantha/main.go for the construct-then-
// serve-then-drain-on-signal shape.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/antoniostano/wallace/internal/config"
	"github.com/antoniostano/wallace/internal/external"
	"github.com/antoniostano/wallace/internal/httpapi"
	"github.com/antoniostano/wallace/internal/memory"
	"github.com/antoniostano/wallace/internal/observability"
	"github.com/antoniostano/wallace/internal/orchestrator"
	"github.com/antoniostano/wallace/internal/push"
	"github.com/antoniostano/wallace/internal/registry"
	"github.com/antoniostano/wallace/internal/router"
	"github.com/antoniostano/wallace/internal/scheduler"
	"github.com/antoniostano/wallace/internal/sensor"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("fatal startup error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	episodic, err := memory.NewStore(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return err
	}
	defer episodic.Close()

	llm := external.NewHTTPLLM(cfg.LLM.URL, cfg.LLM.Model)

	var edgeVoice *external.LocalVoice
	var asr external.ASR
	var edgeTTS external.TTS
	if cfg.TTS.EdgeWorkerScript != "" {
		edgeVoice, err = external.StartLocalVoice(external.LocalVoiceConfig{
			PythonPath: cfg.TTS.EdgeWorkerPython,
			ScriptPath: cfg.TTS.EdgeWorkerScript,
			Voice:      cfg.TTS.EdgeVoice,
		})
		if err != nil {
			logger.Warn("edge voice worker unavailable, falling back to mock ASR/TTS", zap.Error(err))
		}
	}
	if edgeVoice != nil {
		asr = edgeVoice
		edgeTTS = edgeVoice
		defer edgeVoice.Close()
	} else {
		asr = external.NewMockASR()
		edgeTTS = external.NewMockTTS()
	}

	var cloudAltTTS external.TTS = external.NewMockTTS()
	if cfg.TTS.CloudAltURL != "" {
		cloudAltTTS = external.NewCloudVoice(external.CloudVoiceConfig{
			BaseURL: cfg.TTS.CloudAltURL,
			APIKey:  cfg.TTS.CloudAltAPIKey,
			VoiceID: cfg.TTS.CloudAltVoiceID,
		})
	}
	ttsBackends := external.TTSBackends{Edge: edgeTTS, CloudAlt: cloudAltTTS}

	var smartHome external.SmartHome
	if cfg.MQTT.Broker != "" {
		actuator := external.NewMQTTActuator(external.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		actuator.Connect(ctx)
		defer actuator.Disconnect()
		smartHome = actuator
	}

	var weather external.Weather
	if cfg.Weather.APIKey != "" {
		weather = external.NewHTTPWeather(external.WeatherConfig{
			APIURL: cfg.Weather.APIURL,
			APIKey: cfg.Weather.APIKey,
			City:   cfg.Weather.City,
		}, logger)
	}

	wakeword := external.NewWakewordVerifier(0, 0, logger)

	sensorEngine := sensor.New(sensor.Thresholds{
		AirQualityThreshold: cfg.Sensor.AQThreshold,
		LightDarkThreshold:  cfg.Sensor.DarkThreshold,
		LightBrightCutoff:   cfg.Sensor.LightBright,
		TempHigh:            cfg.Sensor.TempHigh,
		TempLow:             cfg.Sensor.TempLow,
		AlertCooldown:       cfg.Sensor.AlertCooldown,
	})
	sensorEngine.Metrics = metrics

	orch := orchestrator.New(asr, llm, ttsBackends, sensorEngine, logger, orchestrator.Config{
		VADThreshold:    cfg.ASR.VADThreshold,
		MaxHistoryTurns: cfg.LLM.MaxHistoryTurns,
	})
	orch.Episodic = episodic
	orch.Metrics = metrics

	reg := registry.New()

	pusher := push.New(reg, llm, ttsBackends, logger, cfg.Care.PushTimeout)
	pusher.Metrics = metrics

	careScheduler := scheduler.New(scheduler.Config{
		SedentaryInterval: cfg.Care.SedentaryInterval,
		MorningTime:       cfg.Care.MorningTime,
		EveningTime:       cfg.Care.EveningTime,
	}, pusher, weather, logger)
	if err := careScheduler.Start(); err != nil {
		return err
	}
	defer careScheduler.Stop()

	rt := router.New(router.Config{
		AllowAnyOrigin:    cfg.Server.AllowAnyOrigin,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Server.HeartbeatTimeout,
	}, reg, orch, sensorEngine, wakeword, smartHome, logger)
	rt.MemoryDataDir = filepath.Join(cfg.Server.DataDir, "memory")
	rt.SyncInterval = cfg.Care.SyncInterval
	rt.Metrics = metrics

	api := httpapi.New(llm, smartHomeChecker(smartHome))
	api.Metrics = metrics

	mux := http.NewServeMux()
	mux.Handle("/health", api)
	mux.Handle("/metrics", api)
	mux.Handle("/debug/turn-stages", api)
	mux.HandleFunc("/ws", rt.HandleWS)

	srv := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("wallace core listening", zap.String("addr", cfg.Server.BindAddr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// smartHomeChecker adapts a possibly-nil external.SmartHome into the
// mqttChecker interface httpapi.New expects, keeping the nil case a
// genuinely nil interface value rather than a non-nil interface
// wrapping a nil pointer.
func smartHomeChecker(sh external.SmartHome) interface{ IsConnected() bool } {
	if sh == nil {
		return nil
	}
	actuator, ok := sh.(interface{ IsConnected() bool })
	if !ok {
		return nil
	}
	return actuator
}
