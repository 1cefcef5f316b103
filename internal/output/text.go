package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/auditlens/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.BatchReport) error {
	ew := &errWriter{w: w}
	s := report.Summary

	if report.RunID != "" {
		ew.printf("AuditLens review run %s\n", report.RunID)
	} else {
		ew.println("AuditLens review")
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Findings: %d total", s.Total)
	if s.Total > 0 {
		ew.printf(" (%d reviewed, %d failed, %d from cache, %d severity mismatches)",
			s.Succeeded, s.Failed, s.Cached, s.Mismatches)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if s.Total == 0 {
		ew.println("\nNothing to review.")
		return ew.err
	}

	for _, id := range report.Order {
		res, ok := report.Results[id]
		if !ok {
			continue
		}
		ew.printf("\n%s %s\n", resultIcon(res), id)
		if !res.OK() {
			ew.printf("  Failed (%s)\n", res.Reason)
			for _, line := range wrapText(res.Error, 70) {
				ew.printf("    %s\n", line)
			}
			continue
		}

		model := res.Model
		if model == "" {
			model = "unknown model"
		}
		if res.Cached {
			model += ", cached"
		}
		if res.Tier != "" {
			ew.printf("  Model: %s (%s tier)\n", model, res.Tier)
		} else {
			ew.printf("  Model: %s\n", model)
		}
		suggestion := res.SeveritySuggestion
		if suggestion == "" {
			suggestion = "none"
		}
		ew.printf("  Suggested severity: %s", suggestion)
		if res.SeverityMismatch {
			ew.printf("  (differs from declared severity)")
		}
		ew.println("")
		if res.Degraded {
			ew.println("  Reply was not structured; raw text kept in review notes.")
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms\n", report.TotalMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func resultIcon(r review.Result) string {
	switch {
	case !r.OK():
		return "[!!]"
	case r.SeverityMismatch:
		return "[!]"
	default:
		return "[ok]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
