package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consortium/types"
)

// HTTPConfig configures the OpenAI-compatible chat-completions invoker.
// The agent identifier passed to Invoke is used verbatim as the model name.
type HTTPConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
}

// HTTPInvoker talks to any OpenAI-compatible chat-completions endpoint.
type HTTPInvoker struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPInvoker creates an HTTP invoker. A zero Timeout defaults to 120s;
// model responses in consensus rounds can be slow.
func NewHTTPInvoker(cfg HTTPConfig, logger *zap.Logger) *HTTPInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}

	return &HTTPInvoker{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "http_invoker")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Message      chatMessage `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model,omitempty"`
	Choices []chatChoice `json:"choices"`
}

type chatErrorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

// Invoke implements Invoker.
func (p *HTTPInvoker) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       agentID,
		Messages:    msgs,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", types.NewError(types.ErrTransport, "marshal chat request").WithAgent(agentID).WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", types.NewError(types.ErrTransport, "build chat request").WithAgent(agentID).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", types.NewError(types.ErrTimeout, "agent invocation timed out").
				WithAgent(agentID).WithRetryable(true).WithCause(err)
		}
		return "", types.NewError(types.ErrTransport, "agent invocation failed").
			WithAgent(agentID).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", p.mapHTTPError(agentID, resp)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", types.NewError(types.ErrProvider, "decode chat response").WithAgent(agentID).WithCause(err)
	}
	if len(chat.Choices) == 0 {
		return "", types.NewError(types.ErrProvider, "chat response has no choices").WithAgent(agentID)
	}

	choice := chat.Choices[0]
	if choice.FinishReason == "length" || choice.FinishReason == "max_tokens" {
		p.logger.Warn("agent response truncated",
			zap.String("agent_id", agentID),
			zap.String("finish_reason", choice.FinishReason),
		)
	}

	p.logger.Debug("agent invocation completed",
		zap.String("agent_id", agentID),
		zap.Duration("latency", time.Since(start)),
	)

	return choice.Message.Content, nil
}

func (p *HTTPInvoker) mapHTTPError(agentID string, resp *http.Response) error {
	msg := readErrMsg(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, msg).WithAgent(agentID)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewError(types.ErrAgentNotFound, msg).WithAgent(agentID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithAgent(agentID).WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrProviderUnavailable, msg).WithAgent(agentID).WithRetryable(true)
	default:
		return types.NewError(types.ErrProvider,
			fmt.Sprintf("status=%d msg=%s", resp.StatusCode, msg)).WithAgent(agentID)
	}
}

func readErrMsg(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unreadable error body"
	}
	var parsed chatErrorResp
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
