package decision

import (
	"context"
	"fmt"

	"github.com/opensec-dev/bastion/internal/audit"
	"github.com/opensec-dev/bastion/internal/normalize"
	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/scorer"
)

// Engine drives a request through the pipeline stages — received, scoring,
// policy check, decided — emitting one audit event per transition. Risky
// input is never an error: risk comes back as a BLOCK verdict. The error
// return is reserved for internal failures.
type Engine struct {
	registry   *scorer.Registry
	aggregator *scorer.Aggregator
	policy     *policy.Engine
	sink       audit.Sink
}

// NewEngine wires the pipeline. A nil sink disables auditing.
func NewEngine(registry *scorer.Registry, aggregator *scorer.Aggregator, policyEngine *policy.Engine, sink audit.Sink) *Engine {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Engine{
		registry:   registry,
		aggregator: aggregator,
		policy:     policyEngine,
		sink:       sink,
	}
}

// Evaluate renders the verdict for one request.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	received := e.newEvent(audit.TypeRequestReceived, req)
	received.Prompt = req.Prompt
	e.sink.Record(received)

	e.sink.Record(e.newEvent(audit.TypeScoringStarted, req))

	norm := normalize.Prompt(req.Prompt)
	results := e.registry.ScoreAll(ctx, scorer.Input{
		Prompt:     req.Prompt,
		Capability: string(req.Capability),
		Domains:    norm.Domains,
		Paths:      norm.Paths,
	})

	composite, err := e.aggregator.Aggregate(results)
	if err != nil {
		// No engine produced a usable score. Blocking here is the whole
		// point of the gateway: an unscoreable request is never waved
		// through, and policy does not get a say.
		completed := e.newEvent(audit.TypeScoringCompleted, req)
		completed.Engines = scorer.SortResults(results)
		completed.Error = err.Error()
		e.sink.Record(completed)

		return e.render(req, Verdict{
			Decision:   policy.DecisionBlock,
			ReasonCode: policy.ReasonFailClosed,
			Composite: scorer.CompositeScore{
				Method:  e.aggregator.Method(),
				Engines: scorer.SortResults(results),
			},
		})
	}

	completed := e.newEvent(audit.TypeScoringCompleted, req)
	completed.Score = &composite.Value
	completed.Engines = composite.Engines
	e.sink.Record(completed)

	authz := e.policy.Authorize(req.Agent, req.Capability, composite.Value)

	checked := e.newEvent(audit.TypePolicyChecked, req)
	checked.ReasonCode = string(authz.Reason)
	checked.Detail = fmt.Sprintf("tolerance=%g", authz.Tolerance)
	e.sink.Record(checked)

	verdict := Verdict{
		Decision:      policy.DecisionAllow,
		ReasonCode:    authz.Reason,
		Composite:     composite,
		PolicyTrigger: authz.Trigger,
	}
	if !authz.Allowed {
		verdict.Decision = policy.DecisionBlock
	}
	return e.render(req, verdict)
}

// render hashes the verdict and emits the terminal decision_rendered
// event.
func (e *Engine) render(req Request, v Verdict) (Verdict, error) {
	hash, err := Hash(v)
	if err != nil {
		return Verdict{}, err
	}
	v.DecisionHash = hash

	rendered := e.newEvent(audit.TypeDecisionRendered, req)
	rendered.Decision = string(v.Decision)
	rendered.ReasonCode = string(v.ReasonCode)
	if v.ReasonCode != policy.ReasonFailClosed {
		value := v.Composite.Value
		rendered.Score = &value
	}
	rendered.Engines = v.Composite.Engines
	rendered.Detail = v.DecisionHash
	e.sink.Record(rendered)

	return v, nil
}

func (e *Engine) newEvent(typ audit.Type, req Request) audit.Event {
	ev := audit.NewEvent(typ, req.ID)
	ev.Agent = req.Agent
	ev.Capability = string(req.Capability)
	return ev
}
