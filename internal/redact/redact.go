// Package redact strips credentials and personal data from text before it
// is logged, audited, or relayed between agents. Scanning and replacement
// share one rule table so a detected kind always has a matching scrub.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every match in redacted output.
const Placeholder = "[REDACTED]"

type rule struct {
	kind    string
	pattern *regexp.Regexp
}

var secretRules = []rule{
	// AWS
	{"aws-key-assignment", regexp.MustCompile(`(?i)(aws_access_key_id|aws_secret_access_key|aws_session_token)\s*[=:]\s*['"]?[A-Za-z0-9/+=]{20,}['"]?`)},
	{"aws-access-key-id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},

	// GitHub
	{"github-token-assignment", regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`)},
	{"github-token", regexp.MustCompile(`gh[opusr]_[A-Za-z0-9]{36}`)},

	// OpenAI-style keys
	{"model-api-key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}`)},

	// Generic API key assignments
	{"api-key-assignment", regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secretkey|secret-key|access_token|auth_token)\s*[=:]\s*['"]?[A-Za-z0-9_-]{16,}['"]?`)},

	// Private key material
	{"private-key", regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`)},

	// Bearer tokens
	{"bearer-token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`)},

	// Credentials embedded in URLs
	{"url-credentials", regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`)},

	// Slack
	{"slack-token", regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`)},

	// Stripe
	{"stripe-key", regexp.MustCompile(`(sk|rk)_live_[0-9a-zA-Z]{24}`)},

	// Password assignments
	{"password-assignment", regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`)},
}

var piiRules = []rule{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit-card", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{"phone", regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)},
}

// Secrets scrubs credential material from text.
func Secrets(input string) string {
	return applyRules(input, secretRules)
}

// PII scrubs personal identifiers from text.
func PII(input string) string {
	return applyRules(input, piiRules)
}

// All scrubs both credentials and personal identifiers.
func All(input string) string {
	return PII(Secrets(input))
}

// SecretKinds reports which credential rule kinds match the input, in rule
// order, each kind at most once.
func SecretKinds(input string) []string {
	return scanRules(input, secretRules)
}

// PIIKinds reports which personal-data rule kinds match the input.
func PIIKinds(input string) []string {
	return scanRules(input, piiRules)
}

func applyRules(input string, rules []rule) string {
	out := input
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, Placeholder)
	}
	return out
}

func scanRules(input string, rules []rule) []string {
	var kinds []string
	for _, r := range rules {
		if r.pattern.MatchString(input) {
			kinds = append(kinds, r.kind)
		}
	}
	return kinds
}

var sensitiveEnvNames = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITHUB_PAT",
	"API_KEY",
	"SECRET_KEY",
	"AUTH_TOKEN",
	"ACCESS_TOKEN",
	"PASSWORD",
	"PASSWD",
	"DATABASE_URL",
	"REDIS_URL",
	"MONGO_URL",
	"STRIPE_SECRET_KEY",
	"SLACK_TOKEN",
	"NPM_TOKEN",
	"PYPI_TOKEN",
	"BASTION_AUTH_SECRET",
}

// EnvVars scrubs values of sensitive-looking variables from a KEY=VALUE
// environment list, leaving the rest untouched.
func EnvVars(envVars []string) []string {
	result := make([]string, 0, len(envVars))
	for _, env := range envVars {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			result = append(result, env)
			continue
		}

		name := strings.ToUpper(parts[0])
		sensitive := false
		for _, marker := range sensitiveEnvNames {
			if strings.Contains(name, marker) {
				sensitive = true
				break
			}
		}

		if sensitive {
			result = append(result, parts[0]+"="+Placeholder)
		} else {
			result = append(result, env)
		}
	}
	return result
}
