package review

import (
	"fmt"
	"strings"

	"github.com/dshills/auditlens/internal/redact"
)

const promptFieldLimit = 2000

const instructions = `You are a senior internal auditor reviewing an audit finding written by a colleague.
Assess the finding independently and respond with ONLY a JSON object. No markdown, no explanation, no preamble.

The JSON object must have this exact structure:
{
  "severity_assessment": "Low|Medium|High|Critical",
  "root_cause_analysis": "The underlying control or process failure",
  "recommendation_refinement": "A sharper, actionable version of the recommendation",
  "risk_narrative": "What could go wrong for the organisation if this is not fixed"
}

Rate severity on the evidence in the finding, not on the declared severity.`

// BuildPrompt constructs the provider prompt for a finding. With
// redactSecrets set, credentials, card numbers and IBANs are masked first.
func BuildPrompt(f Finding, redactSecrets bool) string {
	clean := func(s string) string {
		s = strings.TrimSpace(stripHTML(s))
		if redactSecrets {
			s = redact.Text(s)
		}
		return truncateRunes(s, promptFieldLimit)
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n--- BEGIN FINDING ---\n")
	writeField(&b, "Title", clean(f.Title))
	writeField(&b, "Condition", clean(f.Condition))
	writeField(&b, "Criteria", clean(f.Criteria))
	writeField(&b, "Cause", clean(f.Cause))
	writeField(&b, "Consequence", clean(f.Consequence))
	writeField(&b, "Recommendation", clean(f.Recommendation))
	if f.FinancialImpact != 0 {
		fmt.Fprintf(&b, "Financial impact: %.2f\n", f.FinancialImpact)
	}
	if f.DeclaredSeverity != "" {
		fmt.Fprintf(&b, "Declared severity: %s\n", f.DeclaredSeverity)
	}
	b.WriteString("--- END FINDING ---\n")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
