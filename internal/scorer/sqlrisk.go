package scorer

import (
	"context"
	"regexp"
	"strings"
)

// SQLScorer inspects statements bound for database execution. It engages
// only for the execute_sql capability and looks for the classic injection
// shapes plus destructive statements an agent has no business running
// unattended.
type SQLScorer struct{}

func NewSQLScorer() *SQLScorer { return &SQLScorer{} }

func (s *SQLScorer) Name() string { return "sql" }

func (s *SQLScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	if in.Capability != "execute_sql" {
		return ScoreResult{Score: 0, Category: CategoryBenign}, nil
	}

	best := ScoreResult{Score: 0, Category: CategoryBenign}
	for _, r := range sqlRules {
		if r.match(in.Prompt) && r.score > best.Score {
			best.Score = r.score
			best.Category = r.category
		}
	}
	return best, nil
}

type sqlRule struct {
	id       string
	category Category
	score    float64
	match    func(stmt string) bool
}

var sqlRules = []sqlRule{
	{
		id:       "tautology",
		category: CategoryInjection,
		score:    0.9,
		match:    hasTautology,
	},
	{
		id:       "stacked_statements",
		category: CategoryInjection,
		score:    0.85,
		match:    hasStackedStatement,
	},
	{
		id:       "union_probe",
		category: CategoryInjection,
		score:    0.8,
		match:    func(s string) bool { return unionProbePattern.MatchString(s) },
	},
	{
		id:       "comment_smuggling",
		category: CategoryInjection,
		score:    0.7,
		match:    func(s string) bool { return commentSmugglingPattern.MatchString(s) },
	},
	{
		id:       "drop_or_truncate",
		category: CategoryUnsafeInstruction,
		score:    0.9,
		match:    func(s string) bool { return dropTruncatePattern.MatchString(s) },
	},
	{
		id:       "unbounded_mutation",
		category: CategoryUnsafeInstruction,
		score:    0.8,
		match:    isUnboundedMutation,
	},
	{
		id:       "grant_escalation",
		category: CategoryUnsafeInstruction,
		score:    0.75,
		match:    func(s string) bool { return grantPattern.MatchString(s) },
	},
	{
		id:       "system_table_probe",
		category: CategorySecretLeak,
		score:    0.65,
		match:    func(s string) bool { return systemTablePattern.MatchString(s) },
	},
}

var (
	// OR <x> = <y> comparisons; equality of the two sides is checked in Go
	// since the regexp engine has no backreferences.
	tautologyComparison = regexp.MustCompile(`(?i)\b(?:or|and)\s+('[^']*'|"[^"]*"|\w+)\s*=\s*('[^']*'|"[^"]*"|\w+)`)

	// UNION SELECT pulling columns it should not see.
	unionProbePattern = regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)

	// Inline comments used to split keywords or disarm the statement tail.
	commentSmugglingPattern = regexp.MustCompile(`(/\*.*?\*/|--[^\r\n]*$|#[^\r\n]*$)`)

	dropTruncatePattern = regexp.MustCompile(`(?i)\b(drop\s+(table|database|schema|index|view)|truncate\s+table|truncate\s+\w)`)

	grantPattern = regexp.MustCompile(`(?i)\bgrant\s+(all|select|insert|update|delete|execute)\b.*\bto\b`)

	systemTablePattern = regexp.MustCompile(`(?i)\b(information_schema\.|pg_catalog\.|pg_shadow|pg_user\b|mysql\.user\b|sysobjects|sys\.tables)`)

	deleteFromPattern = regexp.MustCompile(`(?i)\bdelete\s+from\b`)
	updateSetPattern  = regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`)
)

// hasTautology reports OR/AND comparisons whose two sides are the same
// literal, like OR 1=1 and OR 'a'='a'.
func hasTautology(stmt string) bool {
	for _, m := range tautologyComparison.FindAllStringSubmatch(stmt, -1) {
		left := strings.Trim(m[1], `'"`)
		right := strings.Trim(m[2], `'"`)
		if left != "" && strings.EqualFold(left, right) {
			return true
		}
	}
	return false
}

// hasStackedStatement reports whether the text carries a second statement
// after a semicolon. A single trailing semicolon is ordinary SQL.
func hasStackedStatement(stmt string) bool {
	idx := strings.Index(stmt, ";")
	if idx < 0 {
		return false
	}
	rest := strings.TrimSpace(stmt[idx+1:])
	return rest != "" && rest != ";"
}

// isUnboundedMutation reports DELETE or UPDATE with no WHERE clause, which
// rewrites or removes every row in the table.
func isUnboundedMutation(stmt string) bool {
	if !deleteFromPattern.MatchString(stmt) && !updateSetPattern.MatchString(stmt) {
		return false
	}
	return !strings.Contains(strings.ToLower(stmt), " where ")
}
