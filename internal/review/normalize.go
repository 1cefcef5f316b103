package review

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	// EmptyContentNote is stored as raw text when the provider replied
	// without any usable content.
	EmptyContentNote = "[AI review returned no content]"

	rawTextLimit      = 4000
	severityTextLimit = 32
	severityMaxDepth  = 8
)

// Enrichment is a provider reply in canonical form. Every field is always
// present; missing values are empty strings.
type Enrichment struct {
	SeveritySuggestion       string `json:"severitySuggestion"`
	RootCauseAnalysis        string `json:"rootCauseAnalysis"`
	RecommendationRefinement string `json:"recommendationRefinement"`
	RiskNarrative            string `json:"riskNarrative"`
	RawText                  string `json:"rawText"`
	// Content is the full, untruncated reply text.
	Content string `json:"-"`
	// Model is the model id reported in the envelope, if any.
	Model string `json:"model,omitempty"`
	// Degraded is set when no JSON object could be recovered.
	Degraded bool `json:"degraded,omitempty"`
}

// contentExtractor pulls reply text out of a chat completion message.
type contentExtractor struct {
	name    string
	extract func(msg map[string]any) string
}

// contentExtractors are tried in order; the first non-empty text wins.
// Some reasoning models leave content empty and answer in a side field.
var contentExtractors = []contentExtractor{
	{"content", func(msg map[string]any) string { return textOf(msg["content"]) }},
	{"reasoning", func(msg map[string]any) string { return textOf(msg["reasoning"]) }},
	{"reasoning_content", func(msg map[string]any) string { return textOf(msg["reasoning_content"]) }},
}

// bodyCandidate isolates a JSON object candidate from reply text.
type bodyCandidate struct {
	name    string
	extract func(text string) (string, bool)
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\\n?(.*?)```")

var bodyCandidates = []bodyCandidate{
	{"fenced", func(text string) (string, bool) {
		m := fencePattern.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}},
	{"bare", func(text string) (string, bool) {
		return text, true
	}},
	{"embedded", func(text string) (string, bool) {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return "", false
		}
		return text[start : end+1], true
	}},
}

type logicalField int

const (
	fieldSeverity logicalField = iota
	fieldRootCause
	fieldRecommendation
	fieldRiskNarrative
)

// fieldAliases maps each logical field to the normalized keys it may arrive
// under. The first alias present wins.
var fieldAliases = []struct {
	field   logicalField
	aliases []string
}{
	{fieldSeverity, []string{"severity_assessment", "severity_suggestion", "suggested_severity", "severity", "current_severity", "risk_rating", "rating"}},
	{fieldRootCause, []string{"root_cause_analysis", "root_cause", "cause_analysis", "root_causes", "cause"}},
	{fieldRecommendation, []string{"recommendation_refinement", "refined_recommendation", "recommendation_refinements", "recommendations", "recommendation"}},
	{fieldRiskNarrative, []string{"risk_narrative", "narrative", "risk_assessment", "risk_description", "risk"}},
}

// Rating words match at the start of a word, so "Highest" counts and "allow" does not.
var severityWordPattern = regexp.MustCompile(`(?i)\b(critical|high|medium|low)`)

// Normalize turns a raw chat completion payload into an Enrichment. It never
// fails: unreadable input degrades to free text or to an empty placeholder.
func Normalize(payload []byte) Enrichment {
	var env struct {
		Model   string `json:"model"`
		Choices []struct {
			Message map[string]any `json:"message"`
		} `json:"choices"`
	}
	// A broken envelope leaves env empty, which is handled as no content.
	_ = json.Unmarshal(payload, &env)

	var text string
	if len(env.Choices) > 0 && env.Choices[0].Message != nil {
		for _, ex := range contentExtractors {
			if text = strings.TrimSpace(ex.extract(env.Choices[0].Message)); text != "" {
				break
			}
		}
	}
	if text == "" {
		return Enrichment{RawText: EmptyContentNote, Content: EmptyContentNote, Model: env.Model, Degraded: true}
	}

	out := Enrichment{
		RawText: truncateRunes(text, rawTextLimit),
		Content: text,
		Model:   env.Model,
	}
	obj, ok := parseObject(text)
	if !ok {
		out.Degraded = true
		out.SeveritySuggestion = scanSeverity(text)
		return out
	}

	for _, fa := range fieldAliases {
		v, ok := lookup(obj, fa.aliases)
		if !ok {
			continue
		}
		switch fa.field {
		case fieldSeverity:
			out.SeveritySuggestion = severityValue(v, 0)
		case fieldRootCause:
			out.RootCauseAnalysis = textOf(v)
		case fieldRecommendation:
			out.RecommendationRefinement = textOf(v)
		case fieldRiskNarrative:
			out.RiskNarrative = textOf(v)
		}
	}
	return out
}

// parseObject tries each body candidate and returns the first JSON object,
// with keys normalized.
func parseObject(text string) (map[string]any, bool) {
	for _, c := range bodyCandidates {
		body, ok := c.extract(text)
		if !ok || body == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil && obj != nil {
			return normalizeKeys(obj), true
		}
	}
	return nil, false
}

func normalizeKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		nk := normalizeKey(k)
		if _, dup := out[nk]; dup {
			continue
		}
		out[nk] = v
	}
	return out
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

func lookup(obj map[string]any, aliases []string) (any, bool) {
	for _, a := range aliases {
		if v, ok := obj[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// severityValue resolves a severity field. Objects are searched for a
// rating or level, strings are scanned for a known rating word, and
// anything else is kept as a short string.
func severityValue(v any, depth int) string {
	if m, ok := v.(map[string]any); ok && depth < severityMaxDepth {
		if inner, ok := lookup(normalizeKeys(m), []string{"rating", "level", "severity", "value"}); ok {
			return severityValue(inner, depth+1)
		}
	}
	text := textOf(v)
	if s := scanSeverity(text); s != "" {
		return s
	}
	return truncateRunes(text, severityTextLimit)
}

// scanSeverity returns the first rating word that appears in s.
func scanSeverity(s string) string {
	m := severityWordPattern.FindString(s)
	if m == "" {
		return ""
	}
	sev, _ := ParseSeverity(m)
	return string(sev)
}

// textOf renders a JSON value as text. Arrays of strings or content parts
// are joined line by line; other structures are compact JSON.
func textOf(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		var parts []string
		for _, item := range val {
			var s string
			if m, ok := item.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					s = strings.TrimSpace(t)
				} else {
					s = textOf(m)
				}
			} else {
				s = textOf(item)
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
