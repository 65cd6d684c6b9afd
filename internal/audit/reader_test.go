package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTrail(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONL(path)
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	events := []Event{
		{ID: "1", Timestamp: "2026-01-01T00:00:01Z", Type: TypeRequestReceived, Agent: "dev-agent", RequestID: "r1"},
		{ID: "2", Timestamp: "2026-01-01T00:00:02Z", Type: TypeDecisionRendered, Agent: "dev-agent", RequestID: "r1", Decision: "ALLOW", ReasonCode: "allowed"},
		{ID: "3", Timestamp: "2026-01-01T00:00:03Z", Type: TypeRequestReceived, Agent: "ci-agent", RequestID: "r2"},
		{ID: "4", Timestamp: "2026-01-01T00:00:04Z", Type: TypeDecisionRendered, Agent: "ci-agent", RequestID: "r2", Decision: "BLOCK", ReasonCode: "capability_denied"},
		{ID: "5", Timestamp: "2026-01-01T00:00:05Z", Type: TypeDecisionRendered, Agent: "dev-agent", RequestID: "r3", Decision: "BLOCK", ReasonCode: "risk_threshold_exceeded"},
	}
	for _, e := range events {
		if err := sink.Write(e); err != nil {
			t.Fatalf("failed to write event %s: %v", e.ID, err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("failed to close sink: %v", err)
	}
	return path
}

func TestReadFile_NoFilter(t *testing.T) {
	events, err := ReadFile(writeTrail(t), Filter{})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[0].ID != "1" || events[4].ID != "5" {
		t.Error("expected file order to be preserved")
	}
}

func TestReadFile_FilterByAgent(t *testing.T) {
	events, err := ReadFile(writeTrail(t), Filter{Agent: "ci-agent"})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 ci-agent events, got %d", len(events))
	}
}

func TestReadFile_FilterByDecisionAndType(t *testing.T) {
	events, err := ReadFile(writeTrail(t), Filter{Decision: "BLOCK", Type: TypeDecisionRendered})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 blocked decisions, got %d", len(events))
	}
	for _, e := range events {
		if e.Decision != "BLOCK" {
			t.Errorf("filter leak: %+v", e)
		}
	}
}

func TestReadFile_LimitKeepsNewest(t *testing.T) {
	events, err := ReadFile(writeTrail(t), Filter{Limit: 2})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "4" || events[1].ID != "5" {
		t.Errorf("limit must keep the newest events, got %s and %s", events[0].ID, events[1].ID)
	}
}

func TestReadFile_SkipsMalformedLines(t *testing.T) {
	path := writeTrail(t)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("failed to open trail: %v", err)
	}
	if _, err := f.WriteString("not json at all\n{\"id\":\"6\",\"timestamp\":\"2026-01-01T00:00:06Z\",\"type\":\"request_received\"}\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	_ = f.Close()

	events, err := ReadFile(path, Filter{})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events (bad line skipped), got %d", len(events))
	}
}

func TestSummarize(t *testing.T) {
	events, err := ReadFile(writeTrail(t), Filter{})
	if err != nil {
		t.Fatalf("failed to read trail: %v", err)
	}

	s := Summarize(events)
	if s.Total != 5 {
		t.Errorf("expected total 5, got %d", s.Total)
	}
	if s.Allowed != 1 || s.Blocked != 2 {
		t.Errorf("expected 1 allowed / 2 blocked, got %d / %d", s.Allowed, s.Blocked)
	}
	if s.ByReason["capability_denied"] != 1 || s.ByReason["risk_threshold_exceeded"] != 1 {
		t.Errorf("reason counts wrong: %v", s.ByReason)
	}
	if s.ByAgent["dev-agent"] != 2 || s.ByAgent["ci-agent"] != 1 {
		t.Errorf("agent counts wrong: %v", s.ByAgent)
	}
}
