package command

import (
	"strings"
	"testing"
)

func TestMatchRecognizedPrefixes(t *testing.T) {
	subjects := []string{"Review PR #42", "do the thing", "x"}
	for _, prefix := range WakePrefixes {
		for _, subject := range subjects {
			text := prefix + " " + subject
			got, ok := Match(text)
			if !ok {
				t.Errorf("Match(%q) = none, want match", text)
				continue
			}
			if got != prefix {
				t.Errorf("Match(%q) = %q, want %q", text, got, prefix)
			}
		}
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	tests := []string{
		"[clcl-wake] x",
		"[CLCL-WAKE] x",
		"[ClCl-Wake] x",
		"  [clcl] trailing spaces  ",
		"[wake] lower",
	}
	for _, text := range tests {
		if _, ok := Match(text); !ok {
			t.Errorf("Match(%q) = none, want match", text)
		}
	}

	lower, _ := Match("[clcl-wake] x")
	upper, _ := Match("[CLCL-WAKE] x")
	if lower != upper {
		t.Errorf("case-folded matches differ: %q vs %q", lower, upper)
	}
}

func TestMatchMostSpecificFirst(t *testing.T) {
	got, ok := Match("[CLCL-WAKE] check ordering")
	if !ok || got != "[CLCL-WAKE]" {
		t.Errorf("Match = %q, %v; want [CLCL-WAKE], true", got, ok)
	}
}

func TestMatchRejectsNonPrefixed(t *testing.T) {
	tests := []string{
		"",
		"Review PR #42",
		"Re: [CLCL-WAKE] not anchored",
		"please [wake] me",
		"CLCL-WAKE missing brackets",
	}
	for _, text := range tests {
		if got, ok := Match(text); ok {
			t.Errorf("Match(%q) = %q, want none", text, got)
		}
	}
}

func TestMatchRetainsSubjectText(t *testing.T) {
	// Listeners keep the full original text as the subject, so the text
	// after the prefix must survive a match untouched.
	subject := "Deploy v1.2 to staging"
	text := "[CLCL] " + subject
	if _, ok := Match(text); !ok {
		t.Fatalf("Match(%q) = none, want match", text)
	}
	if !strings.Contains(text, subject) {
		t.Fatalf("subject %q lost from %q", subject, text)
	}
}
