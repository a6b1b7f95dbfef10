package external

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPLLM forwards chat completions to an HTTP backend that streams
// its reply as Server-Sent Events or newline-delimited JSON. Reshaped
// from the teacher's callback-based HTTPAdapter.StreamResponse
// (internal/openclaw/http.go) into the channel-based ChatStream
// contract external.LLM requires.
type HTTPLLM struct {
	url    string
	model  string
	client *http.Client
}

func NewHTTPLLM(url, model string) *HTTPLLM {
	return &HTTPLLM{
		url:   strings.TrimSpace(url),
		model: model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func (a *HTTPLLM) ChatStream(ctx context.Context, messages []ChatMessage) (<-chan ChatToken, error) {
	payload, err := json.Marshal(chatRequest{Model: a.model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("llm http status %d: %s", resp.StatusCode, string(body))
	}

	out := make(chan ChatToken, 16)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	go func() {
		defer resp.Body.Close()
		defer close(out)
		if strings.Contains(contentType, "text/event-stream") {
			consumeSSE(resp.Body, out)
			return
		}
		consumeNDJSON(resp.Body, out)
	}()
	return out, nil
}

func (a *HTTPLLM) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func consumeNDJSON(body io.Reader, out chan<- ChatToken) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		delta, done, ok := extractDelta(line)
		if done {
			return
		}
		if !ok {
			continue
		}
		out <- ChatToken{Text: delta}
	}
	if err := scanner.Err(); err != nil {
		out <- ChatToken{Err: fmt.Errorf("stream read: %w", err)}
	}
}

func consumeSSE(body io.Reader, out chan<- ChatToken) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var dataLines []string
	flush := func() bool {
		if len(dataLines) == 0 {
			return false
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		delta, done, ok := extractDelta(payload)
		if done {
			return true
		}
		if ok {
			out <- ChatToken{Text: delta}
		}
		return false
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if flush() {
				return
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field, value = line[:idx], strings.TrimPrefix(line[idx+1:], " ")
		}
		if field == "data" {
			dataLines = append(dataLines, value)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		out <- ChatToken{Err: fmt.Errorf("stream read: %w", err)}
	}
}

// extractDelta pulls a token delta out of one SSE/NDJSON payload line.
// done reports the backend's explicit end-of-stream sentinel.
func extractDelta(payload string) (delta string, done bool, ok bool) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return "", false, false
	}
	if strings.EqualFold(p, "[DONE]") {
		return "", true, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(p), &obj); err != nil {
		return p, false, true
	}
	for _, k := range []string{"text", "delta", "content", "output"} {
		if v, found := obj[k]; found {
			if s, isStr := v.(string); isStr && s != "" {
				return s, false, true
			}
		}
	}
	return "", false, false
}
