package review

import (
	"testing"

	"github.com/dshills/auditlens/internal/config"
	"github.com/dshills/auditlens/internal/quota"
)

var testModels = config.TierModels{Cheap: "cheap-model", Premium: "premium-model"}

func TestSelector_KeywordEscalation(t *testing.T) {
	s := NewSelector(testModels, 0.2, []string{"fraud", "kickback"})
	f := Finding{
		Title:            "Vendor onboarding",
		Condition:        "Indicators of possible FRAUD in vendor onboarding.",
		DeclaredSeverity: SeverityMedium,
	}
	model, tier := s.Select(f, quota.State{CallsUsed: 0, CallsMax: 200})
	if tier != TierPremium || model != "premium-model" {
		t.Errorf("Select = (%s, %s), want premium", model, tier)
	}
}

func TestSelector(t *testing.T) {
	s := NewSelector(testModels, 0.2, []string{"fraud"})
	plain := Finding{Title: "Late reconciliations", DeclaredSeverity: SeverityLow}
	tests := []struct {
		name string
		f    Finding
		q    quota.State
		want Tier
	}{
		{"low severity, no keyword", plain, quota.State{CallsMax: 100}, TierCheap},
		{"medium severity, no keyword", Finding{DeclaredSeverity: SeverityMedium}, quota.State{CallsMax: 100}, TierCheap},
		{"high severity", Finding{DeclaredSeverity: SeverityHigh}, quota.State{CallsMax: 100}, TierPremium},
		{"critical severity", Finding{DeclaredSeverity: SeverityCritical}, quota.State{CallsMax: 100}, TierPremium},
		{"lowercase high", Finding{DeclaredSeverity: "high"}, quota.State{CallsMax: 100}, TierPremium},
		{"padded uppercase critical", Finding{DeclaredSeverity: " CRITICAL "}, quota.State{CallsMax: 100}, TierPremium},
		{"unknown severity", Finding{DeclaredSeverity: "severe"}, quota.State{CallsMax: 100}, TierCheap},
		{"keyword in cause", Finding{Cause: "Suspected fraud by clerk"}, quota.State{CallsMax: 100}, TierPremium},
		// budget 20, 99 used: premium estimate 99-floor(79.2)=20, exhausted.
		{"premium budget spent", Finding{DeclaredSeverity: SeverityHigh}, quota.State{CallsUsed: 99, CallsMax: 100}, TierCheap},
		// budget floor(4*0.2)=0.
		{"no premium budget", Finding{DeclaredSeverity: SeverityHigh}, quota.State{CallsMax: 4}, TierCheap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := s.Select(tt.f, tt.q)
			if got != tt.want {
				t.Errorf("tier = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSelector_Deterministic(t *testing.T) {
	s := NewSelector(testModels, 0.2, []string{"fraud"})
	f := Finding{Condition: "fraud", DeclaredSeverity: SeverityLow}
	q := quota.State{CallsUsed: 17, CallsMax: 50}
	m1, t1 := s.Select(f, q)
	for i := 0; i < 20; i++ {
		m, tier := s.Select(f, q)
		if m != m1 || tier != t1 {
			t.Fatal("Select should be deterministic")
		}
	}
}

func TestSelector_SetKeywords(t *testing.T) {
	s := NewSelector(testModels, 0.2, nil)
	f := Finding{Condition: "possible bribery of officials"}
	q := quota.State{CallsMax: 100}
	if _, tier := s.Select(f, q); tier != TierCheap {
		t.Fatalf("tier = %s before keywords", tier)
	}
	s.SetKeywords([]string{"  Bribery ", ""})
	if _, tier := s.Select(f, q); tier != TierPremium {
		t.Errorf("tier = %s after SetKeywords, want premium", tier)
	}
}

func TestPremiumBudgetAndEstimate(t *testing.T) {
	tests := []struct {
		used, max  int
		p          float64
		wantBudget int
		wantUsed   int
	}{
		{0, 200, 0.2, 40, 0},
		{10, 200, 0.2, 40, 2},
		{5, 100, 0.2, 20, 1},
		{10, 10, 0.7, 7, 7},
		{3, 10, 0, 0, 0},
		{3, 10, 1, 10, 3},
	}
	for _, tt := range tests {
		if got := PremiumBudget(tt.max, tt.p); got != tt.wantBudget {
			t.Errorf("PremiumBudget(%d, %v) = %d, want %d", tt.max, tt.p, got, tt.wantBudget)
		}
		if got := EstimatePremiumUsed(tt.used, tt.p); got != tt.wantUsed {
			t.Errorf("EstimatePremiumUsed(%d, %v) = %d, want %d", tt.used, tt.p, got, tt.wantUsed)
		}
	}
}
