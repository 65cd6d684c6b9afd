package scorer

import (
	"context"
	"regexp"
	"strings"
)

// HeuristicScorer detects prompt-injection and abuse signals using compiled
// pattern rules. It requires no external services and runs synchronously.
type HeuristicScorer struct {
	rules []heuristicRule
}

// heuristicRule is a single detection pattern. When several rules fire on
// one input, the highest-scoring match wins.
type heuristicRule struct {
	id       string
	category Category
	score    float64
	match    func(in Input) bool
}

// NewHeuristicScorer creates the scorer with its built-in rule set.
func NewHeuristicScorer() *HeuristicScorer {
	s := &HeuristicScorer{}
	s.rules = s.buildRules()
	return s
}

func (s *HeuristicScorer) Name() string { return "heuristic" }

// Score runs all rules against the input and reports the strongest match.
// A prompt that triggers nothing is benign with score 0.
func (s *HeuristicScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	best := ScoreResult{Score: 0, Category: CategoryBenign}
	for _, r := range s.rules {
		if r.match(in) && r.score > best.Score {
			best.Score = r.score
			best.Category = r.category
		}
	}
	return best, nil
}

func (s *HeuristicScorer) buildRules() []heuristicRule {
	return []heuristicRule{
		// --- Instruction override: the classic "ignore previous instructions" ---
		{
			id:       "instruction_override",
			category: CategoryUnsafeInstruction,
			score:    0.95,
			match: func(in Input) bool {
				return matchesAnyPattern(in.Prompt, instructionOverridePatterns)
			},
		},

		// --- Guard disabling: attempts to switch off the gateway itself ---
		{
			id:       "disable_security",
			category: CategoryUnsafeInstruction,
			score:    0.90,
			match: func(in Input) bool {
				return matchesAnyPattern(in.Prompt, disableSecurityPatterns)
			},
		},

		// --- Indirect injection: embedded directives targeting the agent ---
		{
			id:       "indirect_injection",
			category: CategoryInjection,
			score:    0.85,
			match: func(in Input) bool {
				return matchesAnyPattern(in.Prompt, indirectInjectionPatterns)
			},
		},

		// --- Prompt exfiltration: coaxing out system instructions ---
		{
			id:       "prompt_exfiltration",
			category: CategoryInjection,
			score:    0.60,
			match: func(in Input) bool {
				return matchesAnyPattern(in.Prompt, promptExfilPatterns)
			},
		},

		// --- Obfuscation: long base64 payloads hiding intent ---
		{
			id:       "obfuscated_base64",
			category: CategoryInjection,
			score:    0.55,
			match: func(in Input) bool {
				return base64PayloadPattern.MatchString(in.Prompt)
			},
		},

		// --- Obfuscation: runs of hex escapes ---
		{
			id:       "obfuscated_hex",
			category: CategoryInjection,
			score:    0.50,
			match: func(in Input) bool {
				return hexEscapePattern.MatchString(in.Prompt)
			},
		},

		// --- Bulk exfiltration: archive broad directories and ship them out ---
		{
			id:       "bulk_exfiltration",
			category: CategorySecretLeak,
			score:    0.85,
			match: func(in Input) bool {
				return matchesBulkExfil(in.Prompt)
			},
		},

		// --- Inline credentials embedded in the prompt ---
		{
			id:       "secrets_in_prompt",
			category: CategorySecretLeak,
			score:    0.75,
			match: func(in Input) bool {
				return secretsInPromptPattern.MatchString(in.Prompt)
			},
		},

		// --- System or credential files named in the prompt ---
		{
			id:       "sensitive_path_access",
			category: CategorySecretLeak,
			score:    0.70,
			match: func(in Input) bool {
				return touchesSensitivePath(in.Paths)
			},
		},

		// --- Throwaway drop points named as network destinations ---
		{
			id:       "exfil_domain",
			category: CategorySecretLeak,
			score:    0.65,
			match: func(in Input) bool {
				return hasExfilDomain(in.Domains)
			},
		},

		// --- Dynamic code execution in scripting one-liners ---
		{
			id:       "eval_risk",
			category: CategoryUnsafeInstruction,
			score:    0.55,
			match: func(in Input) bool {
				return evalRiskPattern.MatchString(in.Prompt)
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Pattern definitions
// ---------------------------------------------------------------------------

var instructionOverridePatterns = compilePatterns([]string{
	`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?)`,
	`(?i)disregard\s+(all\s+)?(previous|prior|your)\s+(previous\s+)?(instructions?|rules?|guidelines?)`,
	`(?i)forget\s+(all\s+)?(your|previous)\s+(instructions?|rules?)`,
	`(?i)override\s+(all\s+)?(safety|security)\s+(rules?|protocols?|guidelines?)`,
	`(?i)you\s+are\s+now\s+(free|unrestricted|unfiltered)`,
	`(?i)new\s+instructions?:\s+`,
	`(?i)system\s*:\s*(you\s+are|ignore|forget)`,
})

var disableSecurityPatterns = compilePatterns([]string{
	`(?i)(disable|turn\s+off|bypass|skip)\s+(the\s+)?(gateway|security|guard|policy|policies|firewall)`,
	`(?i)--no-?(verify|check|security|guard|policy)`,
	`(?i)BASTION_DISABLE`,
})

var indirectInjectionPatterns = compilePatterns([]string{
	`(?i)SYSTEM:\s*(ignore|forget|override|you\s+are)`,
	`(?i)\[INST\]`,
	`(?i)<\|im_start\|>system`,
	`(?i)BEGIN\s+HIDDEN\s+INSTRUCTIONS?`,
	`(?i)IMPORTANT:\s*(ignore|disregard|override)`,
})

var promptExfilPatterns = compilePatterns([]string{
	`(?i)(show|reveal|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?prompt`,
	`(?i)(what\s+are|tell\s+me)\s+(your|the)\s+(instructions?|rules?|guidelines?)`,
	`(?i)repeat\s+(your\s+)?(system\s+)?(prompt|instructions?)`,
})

// base64PayloadPattern matches base64 strings >= 40 chars; short values are
// almost never payloads.
var base64PayloadPattern = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)

// hexEscapePattern matches runs of 4+ hex escapes like \x41\x42\x43\x44,
// where the backslash may appear literally doubled.
var hexEscapePattern = regexp.MustCompile(`(\\\\?x[0-9a-fA-F]{2}){4,}`)

// evalRiskPattern matches eval/exec calls in scripting one-liners.
var evalRiskPattern = regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`)

// secretsInPromptPattern matches inline API keys and tokens.
var secretsInPromptPattern = regexp.MustCompile(
	`(?i)(` +
		`(api[_-]?key|api[_-]?secret|auth[_-]?token|access[_-]?token)\s*[=:]\s*\S{8,}` +
		`|Bearer\s+[A-Za-z0-9._\-]{20,}` +
		`|ghp_[A-Za-z0-9]{36,}` +
		`|\bsk-[A-Za-z0-9]{20,}` +
		`|AKIA[A-Z0-9]{16}` +
		`)`,
)

// sensitivePathPrefixes are system files and pseudo-filesystems an agent
// prompt has no business reading.
var sensitivePathPrefixes = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/hosts",
	"/etc/sudoers",
	"/proc/",
	"/sys/",
}

// credentialPathFragments mark credential stores wherever they sit in the
// tree.
var credentialPathFragments = []string{
	".ssh/",
	".aws/",
	".gnupg/",
	".kube/",
	".npmrc",
	".pypirc",
	".netrc",
}

// exfilDomainFragments are paste sites, throwaway file hosts, and tunnel
// services that appear as drop points far more often than as legitimate
// prompt material.
var exfilDomainFragments = []string{
	"pastebin.com",
	"paste.ee",
	"transfer.sh",
	"file.io",
	"0x0.st",
	"webhook.site",
	"requestbin",
	"ngrok",
	"interactsh",
}

// rawIPHostPattern matches hosts given as bare IPv4 addresses, with or
// without a port. Legitimate prompts name services; drop points get IPs.
var rawIPHostPattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}(:\d+)?$`)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

func matchesAnyPattern(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// matchesBulkExfil detects archiving broad directories combined with an
// upload channel in the same prompt.
func matchesBulkExfil(prompt string) bool {
	lower := strings.ToLower(prompt)

	hasArchive := (strings.Contains(lower, "tar ") || strings.Contains(lower, "zip ")) &&
		(strings.Contains(lower, "~/") ||
			strings.Contains(lower, "$home") ||
			strings.Contains(lower, "/home/") ||
			strings.Contains(lower, ".git") ||
			strings.Contains(lower, "/repo"))

	hasUpload := strings.Contains(lower, "curl") ||
		strings.Contains(lower, "wget") ||
		strings.Contains(lower, "scp ") ||
		strings.Contains(lower, "rsync") ||
		strings.Contains(lower, "transfer.sh") ||
		strings.Contains(lower, "file.io") ||
		strings.Contains(lower, "0x0.st")

	if hasArchive && hasUpload {
		return true
	}

	// Or: pipe archive output straight into an uploader.
	if (strings.Contains(lower, "tar ") || strings.Contains(lower, "zip ")) &&
		strings.Contains(lower, "|") &&
		(strings.Contains(lower, "curl") || strings.Contains(lower, "nc ")) {
		return true
	}

	return false
}

func touchesSensitivePath(paths []string) bool {
	for _, p := range paths {
		for _, prefix := range sensitivePathPrefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		for _, fragment := range credentialPathFragments {
			if strings.Contains(p, fragment) {
				return true
			}
		}
	}
	return false
}

func hasExfilDomain(domains []string) bool {
	for _, d := range domains {
		for _, fragment := range exfilDomainFragments {
			if strings.Contains(d, fragment) {
				return true
			}
		}
		if rawIPHostPattern.MatchString(d) {
			return true
		}
	}
	return false
}
