package dispatch

import (
	"context"

	"github.com/opensec-dev/bastion/internal/decision"
	"github.com/opensec-dev/bastion/internal/sandbox"
)

// SandboxExecutor hands the request's prompt to the external sandbox
// service. Unavailability errors pass through untouched so the dispatcher
// can fall back to simulation.
type SandboxExecutor struct {
	client *sandbox.Client
}

func NewSandboxExecutor(client *sandbox.Client) *SandboxExecutor {
	return &SandboxExecutor{client: client}
}

func (e *SandboxExecutor) Execute(ctx context.Context, req decision.Request) (Result, error) {
	res, err := e.client.Exec(ctx, sandbox.ExecRequest{
		Command:    req.Prompt,
		Capability: string(req.Capability),
		Params:     req.Params,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Output: res.Output, ExitCode: res.ExitCode}, nil
}
