package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CloudVoiceConfig points at the hosted ASR/TTS backend used for the
// "cloud-alt" tts_backend. Grounded on the teacher's ElevenLabsProvider
// (internal/voice/elevenlabs.go), simplified from its websocket
// streaming protocol down to the plain request/response shape spec.md
// requires (transcribe → string, synthesize → frame stream).
type CloudVoiceConfig struct {
	BaseURL string
	APIKey  string
	VoiceID string
	ModelID string
}

type CloudVoice struct {
	cfg    CloudVoiceConfig
	client *http.Client
}

func NewCloudVoice(cfg CloudVoiceConfig) *CloudVoice {
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	return &CloudVoice{cfg: cfg, client: &http.Client{Timeout: 30 * time.Second}}
}

type cloudTranscribeResponse struct {
	Text string `json:"text"`
}

func (c *CloudVoice) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	pcm := encodePCM16LE(samples)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/speech-to-text", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud transcribe request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("cloud transcribe status %d: %s", resp.StatusCode, string(body))
	}

	var out cloudTranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (c *CloudVoice) HasSpeech(samples []float32) bool {
	return rmsEnergy(samples) > 0.01
}

type cloudSynthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (c *CloudVoice) Synthesize(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte, 8)
	errs := make(chan error, 1)

	if strings.TrimSpace(text) == "" {
		close(frames)
		close(errs)
		return frames, errs
	}

	go func() {
		defer close(frames)
		defer close(errs)

		payload, _ := json.Marshal(cloudSynthesizeRequest{Text: text, ModelID: c.cfg.ModelID})
		url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.VoiceID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("xi-api-key", c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			errs <- fmt.Errorf("cloud synthesize request: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			errs <- fmt.Errorf("cloud synthesize status %d: %s", resp.StatusCode, string(body))
			return
		}

		fw := newFrameWriterCtx(ctx, frames)
		buf := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				fw.write(buf[:n])
			}
			if readErr == io.EOF {
				fw.flush()
				return
			}
			if readErr != nil {
				errs <- readErr
				return
			}
		}
	}()
	return frames, errs
}
