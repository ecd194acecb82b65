package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/confidential-chat-gateway/interfaces"
)

// DefaultModel is the generative model used when none is configured.
const DefaultModel = "gemini-2.0-pro-exp-02-05"

const completionTimeout = 30 * time.Second

// Generation parameters for every completion request.
const (
	genTemperature     = 0.7
	genMaxOutputTokens = 1024
	genTopP            = 0.95
	genTopK            = 40
)

// GeminiClient calls a generateContent-style REST endpoint. The full
// conversation is replayed on every request; the upstream session is
// stateless.
type GeminiClient struct {
	baseURL string
	model   string
	apiKey  string
	httpc   *http.Client
	log     *slog.Logger
}

// NewGeminiClient creates a completion client. baseURL is the API root
// (e.g. https://generativelanguage.googleapis.com/v1beta); model defaults
// to DefaultModel when empty.
func NewGeminiClient(baseURL, model, apiKey string, log *slog.Logger) *GeminiClient {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: completionTimeout},
		log:     log,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the conversation plus the new message upstream and returns
// the model's reply. Non-2xx responses and empty candidate lists are
// reported as upstream failures.
func (c *GeminiClient) Complete(ctx context.Context, history []interfaces.ChatTurn, message string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == interfaces.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: message}},
	})

	body, err := json.Marshal(geminiRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     genTemperature,
			MaxOutputTokens: genMaxOutputTokens,
			TopP:            genTopP,
			TopK:            genTopK,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("Completion endpoint returned error",
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("completion response contained no candidates")
	}

	var reply strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		reply.WriteString(part.Text)
	}

	c.log.Debug("Completion received",
		slog.Int("history_turns", len(history)),
		slog.Int("reply_len", reply.Len()),
		slog.Duration("duration", time.Since(start)))

	return reply.String(), nil
}
