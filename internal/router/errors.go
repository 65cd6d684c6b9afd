package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAllProvidersExhausted reports that every provider in the chain failed
// with a transient error. Match it with errors.Is.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ErrNoProviders reports a router with an empty chain.
var ErrNoProviders = errors.New("no providers configured")

// ProviderError is a classified failure from one provider call.
type ProviderError struct {
	Provider string
	Class    ErrorClass
	Status   int // HTTP status when applicable, else 0
	Msg      string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %s", e.Provider, e.Class, e.Status, e.Msg)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Class, e.Msg)
}

// ExhaustedError wraps ErrAllProvidersExhausted with the full attempt
// trace so callers can see how the chain failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s(%s)", a.Provider, a.ErrorClass))
	}
	return fmt.Sprintf("all providers exhausted: %s", strings.Join(parts, ", "))
}

func (e *ExhaustedError) Unwrap() error { return ErrAllProvidersExhausted }

// ClassOf extracts the error class from a provider error chain, or
// ClassUnknown for anything unclassified.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassUnknown
}
