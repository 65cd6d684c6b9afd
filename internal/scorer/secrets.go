package scorer

import (
	"context"

	"github.com/opensec-dev/bastion/internal/redact"
)

// SecretsScorer flags credential material travelling inside a prompt. A
// prompt carrying a live token is either exfiltration in progress or an
// agent pasting things it should never hold, and both deserve the same
// score. Detection shares the redaction rule table, so anything flagged
// here is guaranteed to be scrubbed from audit output.
type SecretsScorer struct{}

func NewSecretsScorer() *SecretsScorer { return &SecretsScorer{} }

func (s *SecretsScorer) Name() string { return "secrets" }

func (s *SecretsScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	kinds := redact.SecretKinds(in.Prompt)
	if len(kinds) == 0 {
		return ScoreResult{Score: 0, Category: CategoryBenign}, nil
	}

	// One kind present is already a leak; each additional kind adds a small
	// increment toward the ceiling.
	score := 0.75 + 0.05*float64(len(kinds)-1)
	if score > 0.95 {
		score = 0.95
	}
	return ScoreResult{Score: score, Category: CategorySecretLeak}, nil
}
