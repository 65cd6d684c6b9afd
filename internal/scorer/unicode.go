package scorer

import (
	"context"

	"github.com/opensec-dev/bastion/internal/unicodex"
)

// UnicodeScorer flags Unicode smuggling: invisible characters, bidi
// overrides, tag characters, and homoglyph substitution. These tricks make
// the prompt a reviewer sees differ from the prompt an agent executes, so
// high-severity findings score close to the ceiling.
type UnicodeScorer struct{}

func NewUnicodeScorer() *UnicodeScorer { return &UnicodeScorer{} }

func (s *UnicodeScorer) Name() string { return "unicode" }

func (s *UnicodeScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	rep := unicodex.Scan(in.Prompt)
	if rep.Clean {
		return ScoreResult{Score: 0, Category: CategoryBenign}, nil
	}
	switch rep.Worst() {
	case unicodex.SeverityHigh:
		return ScoreResult{Score: 0.9, Category: CategoryInjection}, nil
	default:
		// Homoglyphs alone: suspicious, not damning. Honest multilingual
		// prompts contain Cyrillic and Greek letters too.
		return ScoreResult{Score: 0.5, Category: CategoryInjection}, nil
	}
}
