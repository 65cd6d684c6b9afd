package scorer

import (
	"context"
	"testing"
)

func sqlScore(t *testing.T, stmt string) ScoreResult {
	t.Helper()
	s := NewSQLScorer()
	res, err := s.Score(context.Background(), Input{Prompt: stmt, Capability: "execute_sql"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestSQLScorer_IgnoresOtherCapabilities(t *testing.T) {
	s := NewSQLScorer()
	res, err := s.Score(context.Background(), Input{Prompt: "DROP TABLE users", Capability: "invoke_tool"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0 {
		t.Errorf("non-execute_sql requests are out of scope, got %v", res.Score)
	}
}

func TestSQLScorer_Tautology(t *testing.T) {
	tests := []string{
		"SELECT * FROM users WHERE name = 'x' OR 1=1",
		"SELECT * FROM users WHERE id = 5 OR 'a'='a'",
		`SELECT * FROM t WHERE x = 1 or "b"="b"`,
	}
	for _, stmt := range tests {
		res := sqlScore(t, stmt)
		if res.Score != 0.9 || res.Category != CategoryInjection {
			t.Errorf("%q: expected injection 0.9, got %s %v", stmt, res.Category, res.Score)
		}
	}
}

func TestSQLScorer_StackedStatements(t *testing.T) {
	res := sqlScore(t, "SELECT name FROM users; SELECT pass FROM users")
	if res.Score != 0.85 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.85 for stacked statements, got %s %v", res.Category, res.Score)
	}

	// Stacked with a destructive tail; the DROP rule outranks stacking.
	res = sqlScore(t, "SELECT name FROM users; DROP TABLE audit_log")
	if res.Score != 0.9 || res.Category != CategoryUnsafeInstruction {
		t.Errorf("expected unsafe_instruction 0.9, got %s %v", res.Category, res.Score)
	}
}

func TestSQLScorer_TrailingSemicolonIsFine(t *testing.T) {
	res := sqlScore(t, "SELECT id, name FROM customers WHERE region = 'EU';")
	if res.Score != 0 {
		t.Errorf("single trailing semicolon is ordinary SQL, got %v", res.Score)
	}
}

func TestSQLScorer_UnionProbe(t *testing.T) {
	res := sqlScore(t, "SELECT title FROM posts WHERE id = 1 UNION SELECT password FROM users")
	if res.Score != 0.8 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.8, got %s %v", res.Category, res.Score)
	}
}

func TestSQLScorer_CommentSmuggling(t *testing.T) {
	res := sqlScore(t, "SELECT * FROM users WHERE name = 'admin' --' AND pass = 'x'")
	if res.Score != 0.7 || res.Category != CategoryInjection {
		t.Errorf("expected injection 0.7, got %s %v", res.Category, res.Score)
	}
}

func TestSQLScorer_DropAndTruncate(t *testing.T) {
	tests := []string{
		"DROP TABLE customers",
		"drop database production",
		"TRUNCATE TABLE orders",
	}
	for _, stmt := range tests {
		res := sqlScore(t, stmt)
		if res.Score != 0.9 || res.Category != CategoryUnsafeInstruction {
			t.Errorf("%q: expected unsafe_instruction 0.9, got %s %v", stmt, res.Category, res.Score)
		}
	}
}

func TestSQLScorer_UnboundedMutation(t *testing.T) {
	tests := []string{
		"DELETE FROM sessions",
		"UPDATE users SET role = 'admin'",
	}
	for _, stmt := range tests {
		res := sqlScore(t, stmt)
		if res.Score != 0.8 || res.Category != CategoryUnsafeInstruction {
			t.Errorf("%q: expected unsafe_instruction 0.8, got %s %v", stmt, res.Category, res.Score)
		}
	}
}

func TestSQLScorer_BoundedMutationIsFine(t *testing.T) {
	res := sqlScore(t, "DELETE FROM sessions WHERE expires_at < now()")
	if res.Score != 0 {
		t.Errorf("DELETE with WHERE should be clean, got %v", res.Score)
	}
}

func TestSQLScorer_SystemTableProbe(t *testing.T) {
	res := sqlScore(t, "SELECT table_name FROM information_schema.tables")
	if res.Score != 0.65 || res.Category != CategorySecretLeak {
		t.Errorf("expected secret_leak 0.65, got %s %v", res.Category, res.Score)
	}
}

func TestSQLScorer_OrdinaryQueries(t *testing.T) {
	tests := []string{
		"SELECT id, name FROM products WHERE price > 10",
		"INSERT INTO notes (body) VALUES ('hello')",
		"UPDATE users SET last_seen = now() WHERE id = 42",
	}
	for _, stmt := range tests {
		res := sqlScore(t, stmt)
		if res.Score != 0 {
			t.Errorf("%q: expected clean, got %s %v", stmt, res.Category, res.Score)
		}
	}
}

func TestSQLScorer_GrantEscalation(t *testing.T) {
	res := sqlScore(t, "GRANT ALL PRIVILEGES ON db.* TO 'agent'@'%'")
	if res.Score != 0.75 || res.Category != CategoryUnsafeInstruction {
		t.Errorf("expected unsafe_instruction 0.75, got %s %v", res.Category, res.Score)
	}
}
