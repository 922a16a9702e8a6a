package reduce

import (
	"strings"
	"testing"
)

func TestParseJudgmentCleanJSON(t *testing.T) {
	raw := `{"is_same_meaning": true, "explanation": "both cover forced evacuation costs", "matching_article": "artikel 4", "confidence": 0.9, "differences": null}`
	j := ParseJudgment(raw)
	if !j.IsSameMeaning {
		t.Fatal("expected same-meaning true")
	}
	if j.Confidence != 0.9 {
		t.Fatalf("confidence=%v, want 0.9", j.Confidence)
	}
	if j.MatchingArticle != "artikel 4" {
		t.Fatalf("matching_article=%q", j.MatchingArticle)
	}
	if j.Explanation != "both cover forced evacuation costs" {
		t.Fatalf("explanation=%q", j.Explanation)
	}
}

func TestParseJudgmentJSONEmbeddedInProse(t *testing.T) {
	raw := "Sure, here is my analysis:\n" +
		`{"is_same_meaning": false, "explanation": "the reference caps coverage at 30 days", "confidence": 0.85}` +
		"\nLet me know if you need more detail."
	j := ParseJudgment(raw)
	if j.IsSameMeaning {
		t.Fatal("expected same-meaning false")
	}
	if j.Confidence != 0.85 {
		t.Fatalf("confidence=%v, want 0.85", j.Confidence)
	}
	if j.RawResponse != raw {
		t.Fatal("raw response must be preserved")
	}
}

func TestParseJudgmentCodeFences(t *testing.T) {
	raw := "```json\n{\"is_same_meaning\": true, \"explanation\": \"equivalent\", \"confidence\": 0.95}\n```"
	j := ParseJudgment(raw)
	if !j.IsSameMeaning || j.Confidence != 0.95 {
		t.Fatalf("unexpected judgment %+v", j)
	}
}

func TestParseJudgmentStringCoercions(t *testing.T) {
	raw := `{"is_same_meaning": "ja", "confidence": "0.7"}`
	j := ParseJudgment(raw)
	if !j.IsSameMeaning {
		t.Fatal("string 'ja' must coerce to true")
	}
	if j.Confidence != 0.7 {
		t.Fatalf("confidence=%v, want 0.7", j.Confidence)
	}
	if j.Explanation != "no explanation available" {
		t.Fatalf("missing explanation must get the default, got %q", j.Explanation)
	}
}

func TestParseJudgmentMissingConfidenceDefaults(t *testing.T) {
	j := ParseJudgment(`{"is_same_meaning": true, "explanation": "same scope"}`)
	if j.Confidence != 0.8 {
		t.Fatalf("confidence=%v, want default 0.8", j.Confidence)
	}
}

func TestParseJudgmentKeywordFallbackPositive(t *testing.T) {
	j := ParseJudgment("These clauses are essentially identical in coverage terms.")
	if !j.IsSameMeaning {
		t.Fatal("keyword fallback should detect equivalence")
	}
	if j.Confidence != 0.3 {
		t.Fatalf("fallback confidence=%v, want 0.3", j.Confidence)
	}
	if !strings.HasPrefix(j.Explanation, "unparseable model response:") {
		t.Fatalf("explanation=%q", j.Explanation)
	}
}

func TestParseJudgmentKeywordFallbackNegationWins(t *testing.T) {
	j := ParseJudgment("They look the same at first glance but are not equivalent in scope.")
	if j.IsSameMeaning {
		t.Fatal("negation keywords must override equivalence keywords")
	}
	if j.Confidence != 0.3 {
		t.Fatalf("fallback confidence=%v, want 0.3", j.Confidence)
	}
}

func TestParseJudgmentGarbage(t *testing.T) {
	j := ParseJudgment("]]]] 42 ????")
	if j.IsSameMeaning {
		t.Fatal("garbage must not produce a positive judgment")
	}
	if j.Confidence != 0.3 {
		t.Fatalf("confidence=%v, want 0.3", j.Confidence)
	}
}

func TestFallbackJudgment(t *testing.T) {
	j := FallbackJudgment("request timed out")
	if j.IsSameMeaning || j.Confidence != 0.0 {
		t.Fatalf("fallback must be a zero-confidence negative, got %+v", j)
	}
	if !strings.Contains(j.Explanation, "request timed out") {
		t.Fatalf("explanation=%q", j.Explanation)
	}
}

func TestBuildJudgePromptTruncates(t *testing.T) {
	long := strings.Repeat("a", MaxJudgeChars+500)
	prompt := buildJudgePrompt(long, "korte clausule", "artikel 2")
	if strings.Contains(prompt, strings.Repeat("a", MaxJudgeChars+1)) {
		t.Fatal("reference text must be truncated")
	}
	if !strings.Contains(prompt, "artikel 2") {
		t.Fatal("article reference missing from prompt")
	}
	if !strings.Contains(prompt, "is_same_meaning") {
		t.Fatal("schema missing from prompt")
	}
}
