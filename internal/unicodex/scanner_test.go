package unicodex

import (
	"testing"
)

func TestScan_CleanASCII(t *testing.T) {
	rep := Scan("ls -la /tmp")
	if !rep.Clean {
		t.Errorf("expected clean report for ASCII input, got findings: %v", rep.Findings)
	}
	if rep.Sanitized != "ls -la /tmp" {
		t.Errorf("expected sanitized = original, got %q", rep.Sanitized)
	}
	if rep.Worst() != "" {
		t.Errorf("clean report should have no severity, got %q", rep.Worst())
	}
}

func TestScan_ZeroWidthSpace(t *testing.T) {
	rep := Scan("ls​ -la")

	if rep.Clean {
		t.Fatal("expected findings for zero-width space")
	}
	if len(rep.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(rep.Findings))
	}
	if rep.Findings[0].Kind != "zero-width" {
		t.Errorf("expected kind 'zero-width', got %q", rep.Findings[0].Kind)
	}
	if rep.Findings[0].Severity != SeverityHigh {
		t.Errorf("expected high severity, got %q", rep.Findings[0].Severity)
	}
	if rep.Sanitized != "ls -la" {
		t.Errorf("expected sanitized 'ls -la', got %q", rep.Sanitized)
	}
}

func TestScan_BOM(t *testing.T) {
	rep := Scan("\uFEFFecho hello")

	if rep.Clean {
		t.Fatal("expected findings for BOM")
	}
	if rep.Findings[0].Kind != "zero-width" {
		t.Errorf("expected 'zero-width', got %q", rep.Findings[0].Kind)
	}
	if rep.Sanitized != "echo hello" {
		t.Errorf("expected sanitized without BOM, got %q", rep.Sanitized)
	}
}

func TestScan_BidiOverride(t *testing.T) {
	rep := Scan("echo ‮rm -rf /‬ safe")

	if rep.Clean {
		t.Fatal("expected findings for bidi override")
	}
	found := false
	for _, f := range rep.Findings {
		if f.Kind == "bidi-override" {
			found = true
			if f.Severity != SeverityHigh {
				t.Errorf("expected high severity for bidi, got %q", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected at least one bidi-override finding")
	}
}

func TestScan_TagCharacters(t *testing.T) {
	rep := Scan("echo \U000E0001hello\U000E007F")

	if rep.Clean {
		t.Fatal("expected findings for tag characters")
	}
	found := false
	for _, f := range rep.Findings {
		if f.Kind == "tag-char" {
			found = true
		}
	}
	if !found {
		t.Error("expected tag-char finding")
	}
}

func TestScan_ControlCharacters(t *testing.T) {
	rep := Scan("ls\x00 -la")

	if rep.Clean {
		t.Fatal("expected findings for control character")
	}
	if rep.Findings[0].Kind != "control-char" {
		t.Errorf("expected 'control-char', got %q", rep.Findings[0].Kind)
	}
}

func TestScan_AllowsTabAndNewline(t *testing.T) {
	rep := Scan("echo\thello\nworld")
	if !rep.Clean {
		t.Errorf("tab and newline should be allowed, got findings: %v", rep.Findings)
	}
}

func TestScan_CyrillicHomoglyph(t *testing.T) {
	// "cаt" where а is Cyrillic U+0430, not Latin 'a'
	rep := Scan("cаt secrets.txt")

	if rep.Clean {
		t.Fatal("expected findings for Cyrillic homoglyph")
	}
	if rep.Findings[0].Kind != "homoglyph" {
		t.Errorf("expected 'homoglyph', got %q", rep.Findings[0].Kind)
	}
	if rep.Findings[0].Severity != SeverityLow {
		t.Errorf("expected low severity for homoglyph, got %q", rep.Findings[0].Severity)
	}
	if rep.Worst() != SeverityLow {
		t.Errorf("expected worst severity low, got %q", rep.Worst())
	}
}

func TestScan_GreekHomoglyph(t *testing.T) {
	// Greek omicron U+03BF instead of Latin 'o'
	rep := Scan("echο hello")

	if rep.Clean {
		t.Fatal("expected findings for Greek homoglyph")
	}
	if rep.Findings[0].Kind != "homoglyph" {
		t.Errorf("expected 'homoglyph', got %q", rep.Findings[0].Kind)
	}
}

func TestScan_HomoglyphInHostname(t *testing.T) {
	// IDN homograph: "gіthub.com" with Cyrillic і (U+0456)
	rep := Scan("fetch https://gіthub.com/install.sh")

	if rep.Clean {
		t.Fatal("expected findings for IDN homograph")
	}
	found := false
	for _, f := range rep.Findings {
		if f.Kind == "homoglyph" {
			found = true
		}
	}
	if !found {
		t.Error("expected homoglyph finding for Cyrillic і in hostname")
	}
}

func TestScan_WorstPrefersHigh(t *testing.T) {
	// Homoglyph (low) plus zero-width space (high).
	rep := Scan("cаt​ file")
	if rep.Worst() != SeverityHigh {
		t.Errorf("expected high to dominate, got %q", rep.Worst())
	}
}

func TestScan_InvalidUTF8(t *testing.T) {
	rep := Scan("echo " + string([]byte{0xFF, 0xFE}))
	if rep.Clean {
		t.Fatal("expected findings for invalid UTF-8")
	}
	if rep.Findings[0].Kind != "invalid-utf8" {
		t.Errorf("expected 'invalid-utf8', got %q", rep.Findings[0].Kind)
	}
}

func TestScan_NonASCIIForensics(t *testing.T) {
	rep := Scan("ls​")
	if rep.NonASCII == "" {
		t.Error("expected NonASCII to record the flagged codepoint")
	}
}
