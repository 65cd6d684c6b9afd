package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// hashPayload is the decision-relevant projection of a verdict: what was
// decided, why, and on which evidence. Latency is deliberately absent —
// two runs of the same request must hash identically no matter how long
// the engines took.
type hashPayload struct {
	Decision      string       `json:"decision"`
	ReasonCode    string       `json:"reason_code"`
	PolicyTrigger string       `json:"policy_trigger"`
	Value         float64      `json:"value"`
	Method        string       `json:"method"`
	Engines       []hashEngine `json:"engines"`
}

type hashEngine struct {
	Engine   string  `json:"engine"`
	Score    float64 `json:"score"`
	Category string  `json:"category"`
}

// Hash computes the verdict's decision hash: sha256 over the RFC 8785
// canonical JSON of the decision-relevant fields.
func Hash(v Verdict) (string, error) {
	payload := hashPayload{
		Decision:      string(v.Decision),
		ReasonCode:    string(v.ReasonCode),
		PolicyTrigger: v.PolicyTrigger,
		Value:         v.Composite.Value,
		Method:        string(v.Composite.Method),
		Engines:       make([]hashEngine, 0, len(v.Composite.Engines)),
	}
	for _, e := range v.Composite.Engines {
		payload.Engines = append(payload.Engines, hashEngine{
			Engine:   e.Engine,
			Score:    e.Score,
			Category: string(e.Category),
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal verdict: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize verdict: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
