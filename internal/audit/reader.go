package audit

import (
	"bufio"
	"encoding/json"
	"os"
)

// Filter narrows a trail read. Zero fields match everything.
type Filter struct {
	Agent    string
	Decision string
	Type     Type

	// Limit keeps only the newest N matching events. 0 means all.
	Limit int
}

func (f Filter) match(e Event) bool {
	if f.Agent != "" && e.Agent != f.Agent {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// ReadFile loads matching events from a JSONL trail in file order.
// Unparseable lines are skipped: a trail that survived a crash mid-write
// is still mostly readable, and the reader should not die on one bad
// line.
func ReadFile(path string, f Filter) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if f.match(e) {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if f.Limit > 0 && len(events) > f.Limit {
		events = events[len(events)-f.Limit:]
	}
	return events, nil
}

// Summary aggregates a trail for the log command's overview output.
// Decision counts consider only decision_rendered events, so the
// per-stage events of one request are not counted several times.
type Summary struct {
	Total    int
	Allowed  int
	Blocked  int
	ByReason map[string]int
	ByAgent  map[string]int
}

func Summarize(events []Event) Summary {
	s := Summary{
		ByReason: make(map[string]int),
		ByAgent:  make(map[string]int),
	}
	for _, e := range events {
		s.Total++
		if e.Type != TypeDecisionRendered {
			continue
		}
		switch e.Decision {
		case "ALLOW":
			s.Allowed++
		case "BLOCK":
			s.Blocked++
		}
		if e.ReasonCode != "" {
			s.ByReason[e.ReasonCode]++
		}
		if e.Agent != "" {
			s.ByAgent[e.Agent]++
		}
	}
	return s
}
