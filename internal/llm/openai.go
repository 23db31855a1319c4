package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/models"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIGateway implements Gateway against any OpenAI-compatible chat
// completions endpoint.
type OpenAIGateway struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	retry       RetryConfig
	logger      *zap.Logger
}

// OpenAIOption customizes an OpenAIGateway.
type OpenAIOption func(*OpenAIGateway)

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(g *OpenAIGateway) { g.client = c }
}

// WithRetryConfig overrides retry behavior.
func WithRetryConfig(rc RetryConfig) OpenAIOption {
	return func(g *OpenAIGateway) { g.retry = rc }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(g *OpenAIGateway) { g.temperature = t }
}

// NewOpenAIGateway creates a gateway for an OpenAI-compatible provider.
func NewOpenAIGateway(apiKey, baseURL, model string, logger *zap.Logger, opts ...OpenAIOption) *OpenAIGateway {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &OpenAIGateway{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: 0.7,
		client:      &http.Client{Timeout: 120 * time.Second},
		retry:       DefaultRetryConfig(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate sends the system prompt and history to the chat completions
// endpoint, retrying transient failures with backoff.
func (g *OpenAIGateway) Generate(ctx context.Context, system string, history []models.Message) (string, error) {
	req := chatRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages:    buildChatMessages(system, history),
	}

	return ExecuteWithRetry(ctx, g.retry, func() (string, error) {
		return g.complete(ctx, req)
	})
}

// buildChatMessages maps the discussion transcript onto chat roles: the human
// seed becomes a user message, every agent turn an assistant message prefixed
// with its author so personas stay distinguishable in shared history.
func buildChatMessages(system string, history []models.Message) []chatMessage {
	out := make([]chatMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleHuman:
			out = append(out, chatMessage{Role: "user", Content: m.Content})
		default:
			content := m.Content
			if m.Author != "" {
				content = fmt.Sprintf("[%s] %s", m.Author, m.Content)
			}
			out = append(out, chatMessage{Role: "assistant", Content: content})
		}
	}
	return out
}

func (g *OpenAIGateway) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", &GatewayError{Kind: KindInvalidRequest, Provider: "openai", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: KindInvalidRequest, Provider: "openai", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		if ctx.Err() != nil {
			kind = KindTimeout
		}
		return "", &GatewayError{Kind: kind, Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Kind: KindNetwork, Provider: "openai", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{
			Kind:     classifyStatus(resp.StatusCode),
			Provider: "openai",
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &GatewayError{Kind: KindNetwork, Provider: "openai", Err: fmt.Errorf("malformed response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &GatewayError{Kind: KindInvalidRequest, Provider: "openai", Err: fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &GatewayError{Kind: KindInvalidRequest, Provider: "openai", Err: fmt.Errorf("no choices in response")}
	}

	g.logger.Debug("gateway completion",
		zap.String("model", g.model),
		zap.Int("history_len", len(req.Messages)),
	)
	return parsed.Choices[0].Message.Content, nil
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindNetwork
	default:
		return KindInvalidRequest
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
