package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteScorer delegates scoring to an external engine over HTTP. It lets
// deployments plug in proprietary classifiers without rebuilding the
// gateway: the engine receives the prompt and capability, and answers with
// a score and category.
type RemoteScorer struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewRemoteScorer creates a scorer that POSTs to endpoint. name is the
// engine name reported in composite scores; apiKey may be empty.
func NewRemoteScorer(name, endpoint, apiKey string) *RemoteScorer {
	return &RemoteScorer{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *RemoteScorer) Name() string { return s.name }

type remoteScoreRequest struct {
	Prompt     string `json:"prompt"`
	Capability string `json:"capability"`
}

type remoteScoreResponse struct {
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

func (s *RemoteScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	body, err := json.Marshal(remoteScoreRequest{Prompt: in.Prompt, Capability: in.Capability})
	if err != nil {
		return ScoreResult{}, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return ScoreResult{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("call scoring engine %s: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ScoreResult{}, fmt.Errorf("scoring engine %s returned %d: %s", s.name, resp.StatusCode, snippet)
	}

	var out remoteScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ScoreResult{}, fmt.Errorf("decode score response: %w", err)
	}
	if out.Score < 0 || out.Score > 1 {
		return ScoreResult{}, fmt.Errorf("scoring engine %s: score %v out of range", s.name, out.Score)
	}

	cat := Category(out.Category)
	switch cat {
	case CategoryInjection, CategorySecretLeak, CategoryUnsafeInstruction, CategoryBenign:
	case "":
		cat = CategoryBenign
	default:
		return ScoreResult{}, fmt.Errorf("scoring engine %s: unknown category %q", s.name, out.Category)
	}
	return ScoreResult{Score: out.Score, Category: cat}, nil
}
