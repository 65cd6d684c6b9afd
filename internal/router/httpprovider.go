package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// HTTPProvider serves completions from an OpenAI-compatible endpoint. Any
// upstream speaking the /chat/completions dialect slots in: hosted APIs,
// regional mirrors, local inference servers.
type HTTPProvider struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	aliases      map[string]string
	httpClient   *http.Client
}

// HTTPProviderConfig carries the connection settings for one upstream.
type HTTPProviderConfig struct {
	Name         string
	BaseURL      string // e.g. "https://api.openai.com/v1"
	APIKey       string
	DefaultModel string

	// Aliases maps gateway-facing model names to this upstream's own
	// model identifiers.
	Aliases map[string]string
}

// NewHTTPProvider builds a provider from config. The HTTP client carries no
// timeout of its own; the router bounds each attempt through its context.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		name:         cfg.Name,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		aliases:      cfg.Aliases,
		httpClient:   &http.Client{},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// resolveModel maps the gateway alias to this upstream's model name.
func (p *HTTPProvider) resolveModel(alias string) string {
	if alias == "" {
		return p.defaultModel
	}
	if mapped, ok := p.aliases[alias]; ok {
		return mapped
	}
	return alias
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *HTTPProvider) Invoke(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := p.resolveModel(req.Model)
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Class: classifyTransportError(err), Msg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			Provider: p.name,
			Class:    classifyStatus(resp.StatusCode, string(snippet)),
			Status:   resp.StatusCode,
			Msg:      string(snippet),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: p.name, Class: ClassServerError, Status: resp.StatusCode, Msg: "malformed response body"}
	}
	if len(out.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Class: ClassServerError, Status: resp.StatusCode, Msg: "empty choices in response"}
	}

	respModel := out.Model
	if respModel == "" {
		respModel = model
	}
	return &CompletionResponse{
		Provider: p.name,
		Model:    respModel,
		Content:  out.Choices[0].Message.Content,
	}, nil
}

// classifyTransportError sorts network failures into timeout vs connection
// classes. Context cancellation surfaces as timeout so a slow upstream and
// a dead upstream fail over the same way.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	return ClassConnectionFailure
}

func classifyStatus(status int, body string) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		if strings.Contains(body, "quota") {
			return ClassQuotaExhausted
		}
		return ClassRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuthFailure
	case status == http.StatusRequestTimeout:
		return ClassTimeout
	case status >= 500:
		return ClassServerError
	case status >= 400:
		return ClassInvalidRequest
	default:
		return ClassUnknown
	}
}
