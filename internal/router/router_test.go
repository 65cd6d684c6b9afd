package router

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider scripts one outcome and counts invocations.
type fakeProvider struct {
	name  string
	resp  *CompletionResponse
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Invoke(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func transientErr(provider string, class ErrorClass) error {
	return &ProviderError{Provider: provider, Class: class, Msg: "scripted failure"}
}

func TestRouter_FailoverTransparency(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: transientErr("primary", ClassServerError)}
	secondary := &fakeProvider{name: "secondary", resp: &CompletionResponse{Provider: "secondary", Content: "ok"}}

	r := New([]Endpoint{
		{Provider: primary, Priority: 0},
		{Provider: secondary, Priority: 1},
	}, 0)

	resp, call, err := r.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("expected success after failover, got %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected secondary's response, got %q", resp.Content)
	}
	if call.ChosenProvider != "secondary" {
		t.Errorf("expected chosen provider secondary, got %q", call.ChosenProvider)
	}
	if len(call.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(call.Attempts))
	}
	if call.Attempts[0].Provider != "primary" || call.Attempts[0].OK {
		t.Errorf("first attempt should be primary failure: %+v", call.Attempts[0])
	}
	if call.Attempts[0].ErrorClass != ClassServerError {
		t.Errorf("expected server_error class, got %s", call.Attempts[0].ErrorClass)
	}
	if call.Attempts[1].Provider != "secondary" || !call.Attempts[1].OK {
		t.Errorf("second attempt should be secondary success: %+v", call.Attempts[1])
	}
}

func TestRouter_ChainExhaustion(t *testing.T) {
	a := &fakeProvider{name: "a", err: transientErr("a", ClassRateLimited)}
	b := &fakeProvider{name: "b", err: transientErr("b", ClassConnectionFailure)}
	c := &fakeProvider{name: "c", err: transientErr("c", ClassTimeout)}

	r := New([]Endpoint{
		{Provider: a, Priority: 0},
		{Provider: b, Priority: 1},
		{Provider: c, Priority: 2},
	}, 0)

	_, call, err := r.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
	if len(call.Attempts) != 3 {
		t.Errorf("expected attempt per provider, got %d", len(call.Attempts))
	}
	if call.ChosenProvider != "" {
		t.Errorf("no provider should be chosen, got %q", call.ChosenProvider)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if len(exhausted.Attempts) != 3 {
		t.Errorf("exhausted error should carry all attempts, got %d", len(exhausted.Attempts))
	}
}

func TestRouter_NonTransientAborts(t *testing.T) {
	a := &fakeProvider{name: "a", err: transientErr("a", ClassInvalidRequest)}
	b := &fakeProvider{name: "b", resp: &CompletionResponse{Provider: "b", Content: "should not run"}}

	r := New([]Endpoint{
		{Provider: a, Priority: 0},
		{Provider: b, Priority: 1},
	}, 0)

	_, call, err := r.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrAllProvidersExhausted) {
		t.Error("non-transient abort must not report exhaustion")
	}
	if len(call.Attempts) != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", len(call.Attempts))
	}
	if b.calls != 0 {
		t.Errorf("second provider must never be invoked, got %d calls", b.calls)
	}
}

func TestRouter_AuthFailureAborts(t *testing.T) {
	a := &fakeProvider{name: "a", err: transientErr("a", ClassAuthFailure)}
	b := &fakeProvider{name: "b", resp: &CompletionResponse{Content: "x"}}

	r := New([]Endpoint{
		{Provider: a, Priority: 0},
		{Provider: b, Priority: 1},
	}, 0)

	_, _, err := r.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if b.calls != 0 {
		t.Error("auth failure is not transient; chain must stop")
	}
}

func TestRouter_PriorityOrdersChain(t *testing.T) {
	high := &fakeProvider{name: "zz-first", resp: &CompletionResponse{Provider: "zz-first", Content: "hi"}}
	low := &fakeProvider{name: "aa-second", resp: &CompletionResponse{Provider: "aa-second", Content: "lo"}}

	r := New([]Endpoint{
		{Provider: low, Priority: 5},
		{Provider: high, Priority: 1},
	}, 0)

	resp, _, err := r.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "zz-first" {
		t.Errorf("lower priority value must be tried first, got %q", resp.Provider)
	}
	if low.calls != 0 {
		t.Errorf("priority-5 provider should be untouched when priority-1 answers")
	}
}

func TestRouter_EqualPriorityOrderedByName(t *testing.T) {
	a := &fakeProvider{name: "alpha", resp: &CompletionResponse{Provider: "alpha"}}
	b := &fakeProvider{name: "beta", resp: &CompletionResponse{Provider: "beta"}}

	r := New([]Endpoint{
		{Provider: b, Priority: 1},
		{Provider: a, Priority: 1},
	}, 0)

	if got := r.Chain(); got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("equal priorities should order by name, got %v", got)
	}
}

func TestRouter_NoProviders(t *testing.T) {
	r := New(nil, 0)
	_, _, err := r.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestRouter_CustomTransientSetOverridesDefault(t *testing.T) {
	a := &fakeProvider{name: "a", err: transientErr("a", ClassRateLimited)}
	b := &fakeProvider{name: "b", resp: &CompletionResponse{Content: "x"}}

	r := New([]Endpoint{
		{Provider: a, Priority: 0, Transient: map[ErrorClass]bool{ClassTimeout: true}},
		{Provider: b, Priority: 1},
	}, 0)

	_, call, err := r.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("rate_limited is outside this endpoint's transient set; expected abort")
	}
	if len(call.Attempts) != 1 || b.calls != 0 {
		t.Errorf("abort should stop the chain: attempts=%d, b.calls=%d", len(call.Attempts), b.calls)
	}
}

func TestRouter_CancelledContextStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &fakeProvider{name: "a"}
	a.err = transientErr("a", ClassConnectionFailure)
	b := &fakeProvider{name: "b", resp: &CompletionResponse{Content: "x"}}

	r := New([]Endpoint{
		{Provider: a, Priority: 0},
		{Provider: b, Priority: 1},
	}, 0)

	cancel()
	_, _, err := r.Complete(ctx, CompletionRequest{})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if b.calls != 0 {
		t.Error("dead context must not reach further providers")
	}
}
