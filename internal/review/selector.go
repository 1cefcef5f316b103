package review

import (
	"math"
	"strings"
	"sync"

	"github.com/dshills/auditlens/internal/config"
	"github.com/dshills/auditlens/internal/quota"
)

// Tier is the cost class of a model.
type Tier string

const (
	TierCheap   Tier = "cheap"
	TierPremium Tier = "premium"
)

// Selector picks the model for a finding. A fixed fraction of the daily
// quota is reserved for the premium tier; high-severity findings and
// findings mentioning an escalation keyword use it while it lasts.
type Selector struct {
	mu       sync.RWMutex
	models   config.TierModels
	fraction float64
	keywords []string
}

// NewSelector creates a Selector. Keywords are matched case-insensitively.
func NewSelector(models config.TierModels, premiumFraction float64, keywords []string) *Selector {
	s := &Selector{models: models, fraction: premiumFraction}
	s.SetKeywords(keywords)
	return s
}

// SetKeywords replaces the escalation keywords.
func (s *Selector) SetKeywords(keywords []string) {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	s.mu.Lock()
	s.keywords = lowered
	s.mu.Unlock()
}

// Select returns the model and tier for f given the quota as it stood
// before this call was counted. It is deterministic in its inputs.
func (s *Selector) Select(f Finding, q quota.State) (string, Tier) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.escalates(f) && EstimatePremiumUsed(q.CallsUsed, s.fraction) < PremiumBudget(q.CallsMax, s.fraction) {
		return s.models.Premium, TierPremium
	}
	return s.models.Cheap, TierCheap
}

func (s *Selector) escalates(f Finding) bool {
	if sev, ok := ParseSeverity(string(f.DeclaredSeverity)); ok && (sev == SeverityHigh || sev == SeverityCritical) {
		return true
	}
	if len(s.keywords) == 0 {
		return false
	}
	text := strings.ToLower(strings.Join([]string{
		f.Title, f.Condition, f.Criteria, f.Cause, f.Consequence,
	}, "\n"))
	for _, k := range s.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// PremiumBudget is floor(callsMax * p).
func PremiumBudget(callsMax int, p float64) int {
	return floorInt(float64(callsMax) * p)
}

// EstimatePremiumUsed approximates premium calls from aggregate usage as
// used - floor(used * (1-p)). Tier usage is not tracked separately, so this
// assumes past calls followed the cheap/premium split exactly.
func EstimatePremiumUsed(used int, p float64) int {
	return used - floorInt(float64(used)*(1-p))
}

// floorInt absorbs float error such as 10*0.3 = 2.9999999999999996.
func floorInt(x float64) int {
	return int(math.Floor(x + 1e-9))
}
