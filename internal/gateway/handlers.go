package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/dispatch"
	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/redact"
	"github.com/opensec-dev/bastion/internal/router"
)

type submitRequest struct {
	AgentID    string         `json:"agent_id"`
	Prompt     string         `json:"prompt"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
}

type submitResponse struct {
	RequestID string           `json:"request_id"`
	Verdict   decision.Verdict `json:"verdict"`
	Execution *dispatch.Result `json:"execution,omitempty"`
}

// handleSubmit runs the full interception pipeline: score, authorize,
// and on ALLOW hand the request to the execution dispatcher. BLOCK always
// answers 403 with the verdict attached; nothing downstream of the verdict
// can soften it.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := ReadJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Prompt == "" {
		WriteError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if body.Capability == "" {
		WriteError(w, http.StatusBadRequest, "capability is required")
		return
	}
	agent := s.effectiveAgent(r, body.AgentID)
	if agent == "" {
		WriteError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	req := decision.NewRequest(agent, body.Prompt, policy.Capability(body.Capability), body.Params)
	verdict, err := s.pipeline.Engine.Evaluate(r.Context(), req)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to evaluate request")
		return
	}

	if !verdict.Allowed() {
		WriteJSON(w, http.StatusForbidden, submitResponse{RequestID: req.ID, Verdict: verdict})
		return
	}

	result := s.pipeline.Dispatcher.Dispatch(r.Context(), req)
	WriteJSON(w, http.StatusOK, submitResponse{
		RequestID: req.ID,
		Verdict:   verdict,
		Execution: &result,
	})
}

type validateRequest struct {
	Prompt  string `json:"prompt"`
	AgentID string `json:"agent_id,omitempty"`
}

type validateResponse struct {
	Status    string  `json:"status"`
	Score     float64 `json:"score"`
	RequestID string  `json:"request_id"`
}

// handleValidate scores a prompt without executing anything. Anonymous
// callers get the default identity's policy.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body validateRequest
	if err := ReadJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Prompt == "" {
		WriteError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	s.validate(w, r, s.effectiveAgent(r, body.AgentID), body.Prompt, policy.CapabilityInvokeModel)
}

type validateSQLRequest struct {
	Query   string `json:"query"`
	AgentID string `json:"agent_id,omitempty"`
}

// handleValidateSQL scores a SQL statement under the execute_sql
// capability, which wakes the statement-shape engine.
func (s *Server) handleValidateSQL(w http.ResponseWriter, r *http.Request) {
	var body validateSQLRequest
	if err := ReadJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Query == "" {
		WriteError(w, http.StatusBadRequest, "query is required")
		return
	}

	s.validate(w, r, s.effectiveAgent(r, body.AgentID), body.Query, policy.CapabilityExecuteSQL)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request, agent, prompt string, capability policy.Capability) {
	req := decision.NewRequest(agent, prompt, capability, nil)
	verdict, err := s.pipeline.Engine.Evaluate(r.Context(), req)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to evaluate request")
		return
	}
	if !verdict.Allowed() {
		WriteError(w, http.StatusForbidden, blockDetail(verdict))
		return
	}
	WriteJSON(w, http.StatusOK, validateResponse{
		Status:    "allowed",
		Score:     verdict.Composite.Value,
		RequestID: req.ID,
	})
}

type agentMessageRequest struct {
	SourceAgent string `json:"source_agent"`
	TargetAgent string `json:"target_agent"`
	Payload     string `json:"payload"`
}

type agentMessageResponse struct {
	Message        string `json:"message"`
	CleanPayload   string `json:"clean_payload"`
	TargetResponse string `json:"target_response"`
	RequestID      string `json:"request_id"`
}

// handleAgentMessage relays a message between agents: the payload is
// scrubbed of secrets and PII, the cleaned text is scored under
// send_message against the sender's policy, and only then forwarded. The
// target only ever sees the cleaned payload.
func (s *Server) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	var body agentMessageRequest
	if err := ReadJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.SourceAgent == "" || body.TargetAgent == "" {
		WriteError(w, http.StatusBadRequest, "source_agent and target_agent are required")
		return
	}
	if body.Payload == "" {
		WriteError(w, http.StatusBadRequest, "payload is required")
		return
	}

	source := s.effectiveAgent(r, body.SourceAgent)
	clean := redact.All(body.Payload)

	req := decision.NewRequest(source, clean, policy.CapabilitySendMessage, nil)
	verdict, err := s.pipeline.Engine.Evaluate(r.Context(), req)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to evaluate request")
		return
	}
	if !verdict.Allowed() {
		WriteError(w, http.StatusForbidden, blockDetail(verdict))
		return
	}

	WriteJSON(w, http.StatusOK, agentMessageResponse{
		Message:        fmt.Sprintf("message relayed from %s to %s", source, body.TargetAgent),
		CleanPayload:   clean,
		TargetResponse: s.forwardToAgent(r, body.TargetAgent, source, clean),
		RequestID:      req.ID,
	})
}

// forwardToAgent delivers the cleaned payload to the target's configured
// endpoint. Missing or unreachable targets degrade to a labeled simulated
// reply; relaying is best-effort once the verdict allowed it.
func (s *Server) forwardToAgent(r *http.Request, target, source, payload string) string {
	endpoint, ok := s.cfg.Agents[target]
	if !ok {
		return fmt.Sprintf("[SIMULATED] %s acknowledged the message; no endpoint configured", target)
	}

	body, err := json.Marshal(map[string]string{
		"source_agent": source,
		"payload":      payload,
	})
	if err != nil {
		return fmt.Sprintf("[SIMULATED] %s acknowledged the message; no endpoint configured", target)
	}

	freq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("bad agent endpoint, simulating reply")
		return fmt.Sprintf("[SIMULATED] %s is unreachable; message accepted by the gateway", target)
	}
	freq.Header.Set("Content-Type", "application/json")

	resp, err := s.forward.Do(freq)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("agent endpoint unreachable, simulating reply")
		return fmt.Sprintf("[SIMULATED] %s is unreachable; message accepted by the gateway", target)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(snippet))
}

type chatCompletionRequest struct {
	Model    string           `json:"model,omitempty"`
	Messages []router.Message `json:"messages,omitempty"`

	// Prompt is the single-prompt shorthand some agent clients send
	// instead of a messages array.
	Prompt      string  `json:"prompt,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// handleChatCompletions proxies an OpenAI-dialect completion through the
// provider chain. Chain exhaustion maps to 502 with the attempt trace in
// the detail; a request the first upstream called malformed maps to 400
// without touching the rest of the chain.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var body chatCompletionRequest
	if err := ReadJSON(w, r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.Messages) == 0 {
		if body.Prompt == "" {
			WriteError(w, http.StatusBadRequest, "messages or prompt is required")
			return
		}
		body.Messages = []router.Message{{Role: "user", Content: body.Prompt}}
	}

	resp, call, err := s.pipeline.Completions.Complete(r.Context(), router.CompletionRequest{
		Model:       body.Model,
		Messages:    body.Messages,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
	})
	if err != nil {
		writeCompletionError(w, err)
		return
	}

	log.Debug().
		Str("request_id", RequestIDFrom(r.Context())).
		Str("provider", resp.Provider).
		Int("attempts", len(call.Attempts)).
		Msg("completion routed")

	WriteJSON(w, http.StatusOK, map[string]any{
		"id":       "chatcmpl-" + RequestIDFrom(r.Context()),
		"object":   "chat.completion",
		"created":  time.Now().Unix(),
		"model":    resp.Model,
		"provider": resp.Provider,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": resp.Content},
				"finish_reason": "stop",
			},
		},
	})
}

func writeCompletionError(w http.ResponseWriter, err error) {
	if errors.Is(err, router.ErrNoProviders) {
		WriteError(w, http.StatusBadGateway, "no completion providers configured")
		return
	}

	var exhausted *router.ExhaustedError
	if errors.As(err, &exhausted) {
		WriteError(w, http.StatusBadGateway, exhausted.Error())
		return
	}

	var provider *router.ProviderError
	if errors.As(err, &provider) && provider.Class == router.ClassInvalidRequest {
		WriteError(w, http.StatusBadRequest, provider.Error())
		return
	}

	WriteError(w, http.StatusBadGateway, err.Error())
}

// handleHealthz reports liveness plus the config fingerprint, so a fleet
// rollout can confirm which snapshot each node runs.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"config": s.cfg.Fingerprint(),
	})
}

// effectiveAgent resolves the identity a request acts as. An authenticated
// token subject always wins over whatever the body claims.
func (s *Server) effectiveAgent(r *http.Request, bodyAgent string) string {
	if agent := AgentFrom(r.Context()); agent != "" {
		return agent
	}
	return bodyAgent
}

func blockDetail(v decision.Verdict) string {
	switch v.ReasonCode {
	case policy.ReasonCapabilityDenied:
		return fmt.Sprintf("request blocked: capability %s is not permitted for this identity", v.PolicyTrigger)
	case policy.ReasonRiskThresholdExceeded:
		return fmt.Sprintf("request blocked: risk score %.2f exceeds the identity's tolerance", v.Composite.Value)
	case policy.ReasonFailClosed:
		return "request blocked: no scoring engine produced a usable score"
	default:
		return "request blocked by security policy"
	}
}
