package prompt

import (
	"strings"
	"testing"
)

func TestTruncateCountsCharacters(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildCapsExcerpt(t *testing.T) {
	text := strings.Repeat("a", 3000) + "TAIL"
	p := Build(ModeFixed, text, 2500)
	if strings.Contains(p, "TAIL") {
		t.Fatalf("excerpt was not truncated")
	}
	if strings.Count(p, "a") < 2500 || strings.Contains(p, strings.Repeat("a", 2501)) {
		t.Fatalf("excerpt should contain exactly 2500 characters of input")
	}
	if !strings.HasSuffix(p, "Respond with ONLY the JSON object, no other text.") {
		t.Fatalf("missing JSON-only instruction")
	}
}

func TestBuildModes(t *testing.T) {
	fixed := NewBuilder(ModeFixed, 100).Build("BP 120/80")
	for _, key := range FixedKeys {
		if !strings.Contains(fixed, `"`+key+`"`) {
			t.Fatalf("fixed prompt missing key %s", key)
		}
	}
	dynamic := NewBuilder(ModeDynamic, 100).Build("BP 120/80")
	if strings.Contains(dynamic, "Keys required") || !strings.Contains(dynamic, "Patient Summary") {
		t.Fatalf("dynamic prompt has wrong scaffolding:\n%s", dynamic)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("FIXED"); err != nil || m != ModeFixed {
		t.Fatalf("got %v %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeDynamic {
		t.Fatalf("got %v %v", m, err)
	}
	if _, err := ParseMode("other"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClassificationPrompt(t *testing.T) {
	p := Classification(strings.Repeat("x", 2100), 2000)
	if !strings.Contains(p, "MEDICAL or NON-MEDICAL") {
		t.Fatalf("missing answer format")
	}
	if strings.Contains(p, strings.Repeat("x", 2001)) {
		t.Fatalf("classification excerpt not capped")
	}
}
