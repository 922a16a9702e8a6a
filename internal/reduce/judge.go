package reduce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const judgeSystemPrompt = "You are an insurance policy analyst. You compare a clause from a reference " +
	"conditions document against a free-form policy clause and decide whether they have the same meaning " +
	"for coverage purposes. Respond with strict JSON only."

const judgeSchemaPrompt = `Required JSON schema:
{
  "is_same_meaning": "boolean",
  "explanation": "string",
  "matching_article": "string or null",
  "confidence": "float (0.0-1.0)",
  "differences": "string or null"
}`

// SemanticJudge decides whether two differently worded clauses mean the same
// thing. Implementations wrap an external language model; tests use a
// deterministic stub.
type SemanticJudge interface {
	Judge(ctx context.Context, textA, textB, articleRef string) (SemanticJudgment, error)
}

// AnthropicMessager is the slice of the Anthropic SDK the judge needs,
// narrow so tests can substitute it.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicJudge implements SemanticJudge against the Anthropic Messages API.
type AnthropicJudge struct {
	messages AnthropicMessager
}

func NewAnthropicJudge(messages AnthropicMessager) *AnthropicJudge {
	return &AnthropicJudge{messages: messages}
}

func NewAnthropicJudgeFromEnv() (*AnthropicJudge, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicJudge{messages: &c.Messages}, nil
}

func (j *AnthropicJudge) Judge(ctx context.Context, textA, textB, articleRef string) (SemanticJudgment, error) {
	resp, err := j.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   1024,
		System:      []anthropic.TextBlockParam{{Text: judgeSystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(buildJudgePrompt(textA, textB, articleRef)))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return SemanticJudgment{}, fmt.Errorf("semantic judge: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return ParseJudgment(sb.String()), nil
}

func buildJudgePrompt(textA, textB, articleRef string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reference clause (%s):\n%s\n\n", articleRef, truncateRunes(textA, MaxJudgeChars))
	fmt.Fprintf(&b, "Policy clause:\n%s\n\n", truncateRunes(textB, MaxJudgeChars))
	b.WriteString("Do these two clauses have the same meaning for coverage purposes?\n\n")
	b.WriteString(judgeSchemaPrompt)
	b.WriteString("\n\nRespond with only valid JSON matching the schema.")
	return b.String()
}

// jsonObjectRe grabs the first brace-delimited object without nested braces;
// judge responses keep the schema flat, so this covers conforming output
// embedded in prose.
var jsonObjectRe = regexp.MustCompile(`\{[^{}]*\}`)

// ParseJudgment turns a raw model response into a SemanticJudgment. It never
// fails: non-conforming output degrades to keyword heuristics at confidence
// 0.3 with a diagnostic excerpt.
func ParseJudgment(raw string) SemanticJudgment {
	clean := stripCodeFences(raw)

	if m := jsonObjectRe.FindString(clean); m != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(m), &payload); err == nil {
			return judgmentFromPayload(payload, raw)
		}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(clean), &payload); err == nil && payload != nil {
		return judgmentFromPayload(payload, raw)
	}
	return keywordJudgment(raw)
}

func judgmentFromPayload(payload map[string]any, raw string) SemanticJudgment {
	j := SemanticJudgment{
		Explanation: "no explanation available",
		Confidence:  0.8,
		RawResponse: raw,
	}
	if v, ok := asBool(payload["is_same_meaning"]); ok {
		j.IsSameMeaning = v
	}
	if v, ok := payload["explanation"].(string); ok && strings.TrimSpace(v) != "" {
		j.Explanation = v
	}
	if v, ok := asFloat(payload["confidence"]); ok {
		j.Confidence = v
	}
	if v, ok := payload["matching_article"].(string); ok {
		j.MatchingArticle = v
	}
	if v, ok := payload["differences"].(string); ok {
		j.Differences = v
	}
	return j
}

var (
	equivalenceKeywords = []string{"same", "identical", "equivalent", "hetzelfde", "gelijkwaardig"}
	negationKeywords    = []string{"not same", "not the same", "not identical", "not equivalent", "different", "niet hetzelfde", "verschillend"}
)

func keywordJudgment(raw string) SemanticJudgment {
	lower := strings.ToLower(raw)
	positive := containsAny(lower, equivalenceKeywords)
	negative := containsAny(lower, negationKeywords)
	return SemanticJudgment{
		IsSameMeaning: positive && !negative,
		Explanation:   "unparseable model response: " + truncateRunes(raw, 200),
		Confidence:    0.3,
		RawResponse:   raw,
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "ja":
			return true, true
		case "false", "no", "nee":
			return false, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
