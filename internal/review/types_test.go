package review

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in     string
		want   Severity
		wantOK bool
	}{
		{"Low", SeverityLow, true},
		{"high", SeverityHigh, true},
		{" CRITICAL ", SeverityCritical, true},
		{"medium", SeverityMedium, true},
		{"severe", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSeverity(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		severity Severity
		want     int
	}{
		{SeverityLow, 1},
		{SeverityMedium, 2},
		{SeverityHigh, 3},
		{SeverityCritical, 4},
		{Severity("unknown"), 0},
	}
	for _, tt := range tests {
		if got := SeverityRank(tt.severity); got != tt.want {
			t.Errorf("SeverityRank(%q) = %d, want %d", tt.severity, got, tt.want)
		}
	}
}

func TestComputeSummary(t *testing.T) {
	results := map[string]Result{
		"a": {Outcome: OutcomeSuccess, Cached: true},
		"b": {Outcome: OutcomeSuccess, SeverityMismatch: true},
		"c": {Outcome: OutcomeFailed, Reason: "quota"},
	}
	s := ComputeSummary(results)
	if s.Total != 3 || s.Succeeded != 2 || s.Failed != 1 || s.Cached != 1 || s.Mismatches != 1 {
		t.Errorf("summary = %+v", s)
	}
	if !(BatchReport{Summary: s}).HasFailures() {
		t.Error("HasFailures should be true")
	}
}
