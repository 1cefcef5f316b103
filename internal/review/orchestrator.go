package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/auditlens/internal/cache"
	"github.com/dshills/auditlens/internal/providers"
	"github.com/dshills/auditlens/internal/quota"
)

// ErrNotFound is returned by a FindingStore for unknown IDs.
var ErrNotFound = errors.New("finding not found")

// ErrStore marks failures of the finding store.
var ErrStore = errors.New("finding store error")

// FindingStore loads and persists findings.
type FindingStore interface {
	Load(ctx context.Context, id string) (Finding, error)
	Save(ctx context.Context, f Finding) error
}

// Notifier delivers severity-mismatch alerts.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, subject, body string) error
}

// Options wires an Orchestrator. Store, Quota, Selector, Client and Retrier
// are required.
type Options struct {
	Store       FindingStore
	Cache       cache.Store
	CacheTTL    time.Duration
	Quota       *quota.Manager
	Selector    *Selector
	Client      providers.Client
	Retrier     *providers.Retrier
	Notifier    Notifier
	Recipients  []string
	Redact      bool
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// Orchestrator runs the review pipeline for findings. It is safe for
// concurrent use; concurrent reviews of findings that share a fingerprint
// share one provider call.
type Orchestrator struct {
	store       FindingStore
	cache       cache.Store
	cacheTTL    time.Duration
	quota       *quota.Manager
	selector    *Selector
	client      providers.Client
	retrier     *providers.Retrier
	notifier    Notifier
	redact      bool
	maxTokens   int
	temperature float64
	logger      *slog.Logger

	mu         sync.RWMutex
	recipients []string

	group    singleflight.Group
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator validates opts and creates an Orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("finding store is required")
	case opts.Quota == nil:
		return nil, errors.New("quota manager is required")
	case opts.Selector == nil:
		return nil, errors.New("model selector is required")
	case opts.Client == nil:
		return nil, errors.New("provider client is required")
	case opts.Retrier == nil:
		return nil, errors.New("retrier is required")
	}
	o := &Orchestrator{
		store:       opts.Store,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		quota:       opts.Quota,
		selector:    opts.Selector,
		client:      opts.Client,
		retrier:     opts.Retrier,
		notifier:    opts.Notifier,
		redact:      opts.Redact,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		logger:      opts.Logger,
		recipients:  append([]string(nil), opts.Recipients...),
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	if o.cache == nil {
		o.cache = cache.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o, nil
}

// SetRecipients replaces the mismatch notification recipients.
func (o *Orchestrator) SetRecipients(r []string) {
	o.mu.Lock()
	o.recipients = append([]string(nil), r...)
	o.mu.Unlock()
}

// Selector returns the model selector, e.g. to refresh keywords on reload.
func (o *Orchestrator) Selector() *Selector { return o.selector }

// fetched is the provider payload for one fingerprint.
type fetched struct {
	payload  []byte
	model    string
	tier     Tier
	cached   bool
	attempts int
}

// ReviewOne runs the pipeline for one finding. It never returns an error:
// failures are recorded on the finding and in the result.
func (o *Orchestrator) ReviewOne(ctx context.Context, id string) (res Result) {
	start := time.Now()
	res = Result{FindingID: id}
	defer func() { res.DurationMs = time.Since(start).Milliseconds() }()

	f, err := o.store.Load(ctx, id)
	if err != nil {
		return o.failed(ctx, nil, res, fmt.Errorf("%w: loading %s: %w", ErrStore, id, err))
	}

	fp := Fingerprint(f)
	v, err, shared := o.group.Do(fp, func() (any, error) {
		return o.fetch(ctx, f, fp)
	})
	got, _ := v.(fetched)
	res.Attempts = got.attempts
	res.Tier = got.tier
	if err != nil {
		return o.failed(ctx, &f, res, err)
	}
	if shared {
		o.logger.Debug("shared enrichment with concurrent review", "finding", id, "fingerprint", fp)
	}

	n := Normalize(got.payload)
	orig := f
	o.apply(&f, n, got)
	if err := o.store.Save(ctx, f); err != nil {
		// The failure record must not carry enrichment that was never stored.
		return o.failed(ctx, &orig, res, fmt.Errorf("%w: saving %s: %w", ErrStore, id, err))
	}

	if f.SeverityMismatch {
		o.notifyMismatch(ctx, f)
	}

	res.Outcome = OutcomeSuccess
	res.Model = f.ModelUsed
	res.Cached = got.cached
	res.Degraded = n.Degraded
	res.SeverityMismatch = f.SeverityMismatch
	if f.SeveritySuggestion != nil {
		res.SeveritySuggestion = string(*f.SeveritySuggestion)
	}
	o.logger.Info("finding reviewed",
		"finding", id, "model", res.Model, "cached", res.Cached, "mismatch", res.SeverityMismatch)
	return res
}

// ReviewBatch reviews ids in order. A failure never stops the batch.
func (o *Orchestrator) ReviewBatch(ctx context.Context, ids []string) BatchReport {
	start := time.Now()
	report := BatchReport{
		RunID:     o.newRunID(),
		StartedAt: o.now().UTC(),
		Results:   make(map[string]Result, len(ids)),
		Order:     make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		if _, seen := report.Results[id]; !seen {
			report.Order = append(report.Order, id)
		}
		report.Results[id] = o.ReviewOne(ctx, id)
	}
	report.Summary = ComputeSummary(report.Results)
	report.TotalMs = time.Since(start).Milliseconds()
	o.logger.Info("batch finished", "run", report.RunID,
		"total", report.Summary.Total, "failed", report.Summary.Failed)
	return report
}

// fetch returns the provider payload for fp, from the cache when possible.
// Quota is only spent on cache misses.
func (o *Orchestrator) fetch(ctx context.Context, f Finding, fp string) (fetched, error) {
	if e, ok := o.cache.Get(ctx, fp); ok {
		return fetched{payload: e.Payload, cached: true}, nil
	}

	// A closed rate-limit gate must not cost quota.
	if err := o.retrier.Gate().Check(); err != nil {
		return fetched{}, err
	}

	snap, err := o.quota.Snapshot(ctx)
	if err != nil {
		return fetched{}, err
	}
	if err := o.quota.Consume(ctx); err != nil {
		return fetched{}, err
	}
	model, tier := o.selector.Select(f, snap)

	req := providers.Request{
		Model:       model,
		Prompt:      BuildPrompt(f, o.redact),
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}
	out, err := o.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return o.client.Send(ctx, req)
	})
	got := fetched{model: model, tier: tier, attempts: len(out.Attempts)}
	if err != nil {
		return got, err
	}
	got.payload = out.Payload

	if err := o.cache.Put(ctx, fp, out.Payload, o.cacheTTL); err != nil {
		o.logger.Debug("cache write failed", "fingerprint", fp, "error", err)
	}
	return got, nil
}

// apply writes the enrichment onto f.
func (o *Orchestrator) apply(f *Finding, n Enrichment, got fetched) {
	reviewedAt := o.now().UTC()
	f.ReviewStatus = StatusReviewed
	f.ReviewNotes = n.Content
	f.ReviewedAt = &reviewedAt
	f.ModelUsed = n.Model
	if f.ModelUsed == "" {
		f.ModelUsed = got.model
	}
	f.SeveritySuggestion = nil
	if sev, ok := ParseSeverity(n.SeveritySuggestion); ok {
		f.SeveritySuggestion = &sev
	}
	f.RootCauseAnalysis = n.RootCauseAnalysis
	f.RecommendationRefinement = n.RecommendationRefinement
	f.RiskNarrative = n.RiskNarrative
	f.SeverityMismatch = f.SeveritySuggestion != nil &&
		!strings.EqualFold(string(*f.SeveritySuggestion), string(f.DeclaredSeverity))
}

// failed records err on f (when loaded) and returns a Failed result.
func (o *Orchestrator) failed(ctx context.Context, f *Finding, res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Reason = ReasonFor(err)
	res.Error = err.Error()
	o.logger.Warn("finding review failed", "finding", res.FindingID, "reason", res.Reason, "error", err)

	if f == nil {
		return res
	}
	f.ReviewStatus = StatusFailed
	f.ReviewNotes = fmt.Sprintf("AI review failed (%s): %v", res.Reason, err)
	// Record the failure even when the review was canceled.
	if serr := o.store.Save(context.WithoutCancel(ctx), *f); serr != nil {
		o.logger.Error("could not record failed review", "finding", res.FindingID, "error", serr)
	}
	return res
}

func (o *Orchestrator) notifyMismatch(ctx context.Context, f Finding) {
	if o.notifier == nil {
		return
	}
	o.mu.RLock()
	recipients := o.recipients
	o.mu.RUnlock()

	subject := fmt.Sprintf("Severity mismatch on finding %s", f.ID)
	body := fmt.Sprintf("Finding %q was declared %s; the AI review suggests %s.\n\nRisk narrative: %s",
		f.Title, f.DeclaredSeverity, *f.SeveritySuggestion, f.RiskNarrative)
	if err := o.notifier.Notify(ctx, recipients, subject, body); err != nil {
		o.logger.Warn("mismatch notification failed", "finding", f.ID, "error", err)
	}
}

// ReasonFor maps a review error to a stable reason marker.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, quota.ErrExhausted), errors.Is(err, quota.ErrUnavailable):
		return "quota"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, providers.ErrExhausted):
		return "exhausted"
	case errors.Is(err, providers.ErrHardFailed):
		return "hard_failed"
	case errors.Is(err, providers.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}
