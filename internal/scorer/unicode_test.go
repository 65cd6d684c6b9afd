package scorer

import (
	"context"
	"testing"
)

func TestUnicodeScorer_CleanPrompt(t *testing.T) {
	s := NewUnicodeScorer()
	res, err := s.Score(context.Background(), Input{Prompt: "deploy the staging build"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0 || res.Category != CategoryBenign {
		t.Errorf("expected benign 0.0, got %s %v", res.Category, res.Score)
	}
}

func TestUnicodeScorer_ZeroWidthSmuggling(t *testing.T) {
	s := NewUnicodeScorer()
	res, err := s.Score(context.Background(), Input{Prompt: "rm​ -rf /"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0.9 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.9, got %s %v", res.Category, res.Score)
	}
}

func TestUnicodeScorer_BidiOverride(t *testing.T) {
	s := NewUnicodeScorer()
	res, err := s.Score(context.Background(), Input{Prompt: "echo ‮gnp.fdp‬"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0.9 {
		t.Errorf("expected 0.9 for bidi override, got %v", res.Score)
	}
}

func TestUnicodeScorer_HomoglyphOnly(t *testing.T) {
	s := NewUnicodeScorer()
	// Cyrillic а in "cаt": suspicious but survivable.
	res, err := s.Score(context.Background(), Input{Prompt: "cаt notes.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0.5 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.5, got %s %v", res.Category, res.Score)
	}
}
