package review

import (
	"strings"
	"time"
)

// Severity is the risk rating of an audit finding.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Severities lists the ratings from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity matches s case-insensitively against the known ratings.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.TrimSpace(s)
	for _, sev := range Severities {
		if strings.EqualFold(s, string(sev)) {
			return sev, true
		}
	}
	return "", false
}

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Status is the AI review state of a finding.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusReviewed Status = "Reviewed"
	StatusFailed   Status = "Failed"
)

// Finding is an audit finding. The descriptive fields are owned by the
// audit record system; the review fields are written only by the
// orchestrator.
type Finding struct {
	ID               string   `json:"id" bson:"_id"`
	Title            string   `json:"title" bson:"title"`
	Condition        string   `json:"condition" bson:"condition"`
	Criteria         string   `json:"criteria" bson:"criteria"`
	Cause            string   `json:"cause" bson:"cause"`
	Consequence      string   `json:"consequence" bson:"consequence"`
	Recommendation   string   `json:"recommendation" bson:"recommendation"`
	FinancialImpact  float64  `json:"financialImpact" bson:"financialImpact"`
	DeclaredSeverity Severity `json:"declaredSeverity" bson:"declaredSeverity"`

	ReviewStatus             Status     `json:"reviewStatus" bson:"reviewStatus"`
	ReviewNotes              string     `json:"reviewNotes,omitempty" bson:"reviewNotes,omitempty"`
	ReviewedAt               *time.Time `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	ModelUsed                string     `json:"modelUsed,omitempty" bson:"modelUsed,omitempty"`
	SeveritySuggestion       *Severity  `json:"severitySuggestion,omitempty" bson:"severitySuggestion,omitempty"`
	RootCauseAnalysis        string     `json:"rootCauseAnalysis,omitempty" bson:"rootCauseAnalysis,omitempty"`
	RecommendationRefinement string     `json:"recommendationRefinement,omitempty" bson:"recommendationRefinement,omitempty"`
	RiskNarrative            string     `json:"riskNarrative,omitempty" bson:"riskNarrative,omitempty"`
	SeverityMismatch         bool       `json:"severityMismatch" bson:"severityMismatch"`
}

// Outcome is the result class of one review.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Result describes what happened to one finding.
type Result struct {
	FindingID          string  `json:"findingId"`
	Outcome            Outcome `json:"outcome"`
	Reason             string  `json:"reason,omitempty"`
	Error              string  `json:"error,omitempty"`
	Model              string  `json:"model,omitempty"`
	Tier               Tier    `json:"tier,omitempty"`
	Cached             bool    `json:"cached"`
	Attempts           int     `json:"attempts"`
	SeveritySuggestion string  `json:"severitySuggestion,omitempty"`
	SeverityMismatch   bool    `json:"severityMismatch"`
	Degraded           bool    `json:"degraded,omitempty"`
	DurationMs         int64   `json:"durationMs"`
}

// OK reports whether the review succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Cached     int `json:"cached"`
	Mismatches int `json:"mismatches"`
}

// BatchReport is the top-level output of ReviewBatch.
type BatchReport struct {
	RunID     string            `json:"runId"`
	StartedAt time.Time         `json:"startedAt"`
	Results   map[string]Result `json:"results"`
	// Order lists finding IDs in the order they were reviewed.
	Order   []string     `json:"order"`
	Summary BatchSummary `json:"summary"`
	TotalMs int64        `json:"totalMs"`
}

// HasFailures reports whether any finding failed.
func (b BatchReport) HasFailures() bool { return b.Summary.Failed > 0 }

// ComputeSummary calculates the summary from results.
func ComputeSummary(results map[string]Result) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		s.Total++
		if r.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if r.Cached {
			s.Cached++
		}
		if r.SeverityMismatch {
			s.Mismatches++
		}
	}
	return s
}
