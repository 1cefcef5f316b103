package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dshills/auditlens/internal/review"
)

// Writer renders a batch report.
type Writer interface {
	Write(w io.Writer, report *review.BatchReport) error
}

// Formats lists the accepted format names.
var Formats = []string{"text", "json", "jsonl"}

// GetWriter returns the writer for format. An empty format means text.
func GetWriter(format string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "jsonl", "ndjson":
		return &JSONLinesWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteReport renders report to outPath, or to stdout when outPath is empty or "-".
func WriteReport(report *review.BatchReport, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}
	if outPath == "" || outPath == "-" {
		return writer.Write(os.Stdout, report)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
