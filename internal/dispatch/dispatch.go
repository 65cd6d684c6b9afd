// Package dispatch carries out requests the pipeline has already allowed.
// A per-capability executor table routes work to the sandbox; anything
// without a real executor — or whose sandbox is unreachable — is
// simulated, with the output labeled so nobody mistakes it for a real
// run. Nothing in this package can flip a verdict: execution problems are
// reported in the result and the audit trail, never by retroactive
// blocking.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensec-dev/bastion/internal/audit"
	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/policy"
	"github.com/opensec-dev/bastion/internal/sandbox"
)

// Result is the outcome of executing (or simulating) an allowed request.
type Result struct {
	Simulated bool   `json:"simulated"`
	Output    string `json:"output,omitempty"`
	ExitCode  int    `json:"exit_code"`

	// Error carries a dispatch-level failure: a parameter rejection or an
	// executor error. The request's verdict is unaffected by it.
	Error string `json:"error,omitempty"`
}

// Executor carries out one class of allowed request.
type Executor interface {
	Execute(ctx context.Context, req decision.Request) (Result, error)
}

// Dispatcher owns the capability → executor table.
type Dispatcher struct {
	executors map[policy.Capability]Executor
	firewall  *ParamFirewall
	sink      audit.Sink
}

// NewDispatcher wires the execution layer. A nil firewall skips parameter
// validation; a nil sink disables auditing.
func NewDispatcher(firewall *ParamFirewall, sink audit.Sink) *Dispatcher {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Dispatcher{
		executors: make(map[policy.Capability]Executor),
		firewall:  firewall,
		sink:      sink,
	}
}

// Register routes a capability to an executor. Capabilities without one
// are simulated.
func (d *Dispatcher) Register(capability policy.Capability, ex Executor) {
	d.executors[capability] = ex
}

// Dispatch runs one allowed request and reports what happened.
func (d *Dispatcher) Dispatch(ctx context.Context, req decision.Request) Result {
	if d.firewall != nil {
		if err := d.firewall.Validate(req.Capability, req.Params); err != nil {
			result := Result{Error: err.Error()}
			d.emit(req, audit.TypeExecutionFailed, result)
			return result
		}
	}

	ex, ok := d.executors[req.Capability]
	if !ok {
		result := simulate(req)
		d.emit(req, audit.TypeExecutionSimulated, result)
		return result
	}

	result, err := ex.Execute(ctx, req)
	switch {
	case errors.Is(err, sandbox.ErrUnavailable):
		result = simulate(req)
		d.emit(req, audit.TypeExecutionSimulated, result)
	case err != nil:
		result = Result{Error: err.Error()}
		d.emit(req, audit.TypeExecutionFailed, result)
	case result.Simulated:
		d.emit(req, audit.TypeExecutionSimulated, result)
	default:
		d.emit(req, audit.TypeExecutionCompleted, result)
	}
	return result
}

func (d *Dispatcher) emit(req decision.Request, typ audit.Type, result Result) {
	ev := audit.NewEvent(typ, req.ID)
	ev.Agent = req.Agent
	ev.Capability = string(req.Capability)
	ev.Detail = truncate(result.Output, 200)
	ev.Error = result.Error
	d.sink.Record(ev)
}

// simulate produces the fallback result when nothing real can run. The
// label is part of the contract: downstream consumers must be able to
// tell simulated output from sandbox output at a glance.
func simulate(req decision.Request) Result {
	return Result{
		Simulated: true,
		Output: fmt.Sprintf("[SIMULATED] %s accepted for agent %s; no sandbox executed it. prompt: %s",
			req.Capability, req.Agent, truncate(req.Prompt, 160)),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
