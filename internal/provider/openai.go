package provider

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

	"github.com/kpanalytix/kpa-assistant/internal"
)

const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultMaxTokens      = 500
	DefaultTemperature    = 0.7

	maxResponseBytes = 1 << 20
)

type OpenAIProvider struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
	client      *http.Client
}

type OpenAIOptions struct {
	APIKey      string
	Model       string
	Endpoint    string
	MaxTokens   int
	Temperature float64
	// HTTPClient has no timeout of its own; callers bound requests with ctx.
	HTTPClient *http.Client
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is empty")
	}
	p := &OpenAIProvider{
		apiKey:      opts.APIKey,
		model:       opts.Model,
		endpoint:    opts.Endpoint,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		client:      opts.HTTPClient,
	}
	if p.model == "" {
		p.model = DefaultOpenAIModel
	}
	if p.endpoint == "" {
		p.endpoint = DefaultOpenAIEndpoint
	}
	if p.maxTokens <= 0 {
		p.maxTokens = DefaultMaxTokens
	}
	if p.client == nil {
		p.client = &http.Client{Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}}
	}
	return p, nil
}

func (p *OpenAIProvider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []internal.Message) (string, error) {
	payload := chatRequest{
		Model:       p.model,
		Messages:    make([]chatMessage, 0, len(messages)),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", transportError("openai", 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transportError("openai", resp.StatusCode, "read body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		msg := e.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return "", transportError("openai", resp.StatusCode, msg, nil)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", malformedError("openai", "decode response", err)
	}
	if len(out.Choices) == 0 {
		return "", malformedError("openai", "no choices in response", nil)
	}
	content := out.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", malformedError("openai", "empty reply content", nil)
	}
	return *content, nil
}
