package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/auditlens/internal/review"
)

func TestJSONWriter(t *testing.T) {
	results := map[string]review.Result{
		"F-1": {FindingID: "F-1", Outcome: review.OutcomeSuccess, Model: "m", SeveritySuggestion: "High"},
	}
	report := &review.BatchReport{
		RunID:   "test-run",
		Results: results,
		Order:   []string{"F-1"},
		Summary: review.ComputeSummary(results),
	}

	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var decoded review.BatchReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if decoded.RunID != "test-run" {
		t.Errorf("RunID = %q", decoded.RunID)
	}
	if decoded.Results["F-1"].SeveritySuggestion != "High" {
		t.Errorf("Results = %+v", decoded.Results)
	}
	if decoded.Summary.Succeeded != 1 {
		t.Errorf("Summary = %+v", decoded.Summary)
	}
}

func TestGetWriter(t *testing.T) {
	for _, format := range []string{"text", "json", "jsonl", "JSON", ""} {
		if _, err := GetWriter(format); err != nil {
			t.Errorf("GetWriter(%q) error: %v", format, err)
		}
	}
	if _, err := GetWriter("sarif"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestJSONLinesWriter(t *testing.T) {
	results := map[string]review.Result{
		"F-2": {FindingID: "F-2", Outcome: review.OutcomeFailed, Reason: "quota"},
		"F-1": {FindingID: "F-1", Outcome: review.OutcomeSuccess, Model: "m"},
	}
	report := &review.BatchReport{RunID: "run-9", Results: results, Order: []string{"F-2", "F-1"}}

	var buf bytes.Buffer
	if err := (&JSONLinesWriter{}).Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	var first resultLine
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if first.RunID != "run-9" || first.FindingID != "F-2" || first.Reason != "quota" {
		t.Errorf("first line = %+v, want F-2 in batch order", first)
	}
}

func TestWriteReport_File(t *testing.T) {
	results := map[string]review.Result{"F-1": {FindingID: "F-1", Outcome: review.OutcomeSuccess}}
	report := &review.BatchReport{RunID: "r", Results: results, Order: []string{"F-1"}}
	path := filepath.Join(t.TempDir(), "report.json")

	if err := WriteReport(report, "json", path); err != nil {
		t.Fatalf("WriteReport error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Errorf("file is not valid JSON: %s", data)
	}
	if err := WriteReport(report, "xml", path); err == nil {
		t.Error("unknown format should fail")
	}
}
