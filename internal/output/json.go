package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/auditlens/internal/review"
)

// JSONWriter outputs the full batch report as one indented JSON document.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *review.BatchReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("writing JSON report: %w", err)
	}
	return nil
}

// JSONLinesWriter outputs one result per line in batch order, tagged with
// the run ID, for log shippers and job queues.
type JSONLinesWriter struct{}

type resultLine struct {
	RunID string `json:"runId"`
	review.Result
}

func (j *JSONLinesWriter) Write(w io.Writer, report *review.BatchReport) error {
	enc := json.NewEncoder(w)
	for _, id := range report.Order {
		if err := enc.Encode(resultLine{RunID: report.RunID, Result: report.Results[id]}); err != nil {
			return fmt.Errorf("writing result %s: %w", id, err)
		}
	}
	return nil
}
