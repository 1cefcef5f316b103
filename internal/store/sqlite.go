package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dshills/auditlens/internal/review"
)

const findingsTable = "findings"

var findingColumns = []string{
	"id", "title", "condition", "criteria", "cause", "consequence", "recommendation",
	"financial_impact", "declared_severity",
	"review_status", "review_notes", "reviewed_at", "model_used", "severity_suggestion",
	"root_cause_analysis", "recommendation_refinement", "risk_narrative", "severity_mismatch",
}

// SQLite keeps findings in a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		condition TEXT NOT NULL DEFAULT '',
		criteria TEXT NOT NULL DEFAULT '',
		cause TEXT NOT NULL DEFAULT '',
		consequence TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT '',
		financial_impact REAL NOT NULL DEFAULT 0,
		declared_severity TEXT NOT NULL DEFAULT '',
		review_status TEXT NOT NULL DEFAULT 'Pending',
		review_notes TEXT NOT NULL DEFAULT '',
		reviewed_at TEXT,
		model_used TEXT NOT NULL DEFAULT '',
		severity_suggestion TEXT,
		root_cause_analysis TEXT NOT NULL DEFAULT '',
		recommendation_refinement TEXT NOT NULL DEFAULT '',
		risk_narrative TEXT NOT NULL DEFAULT '',
		severity_mismatch INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_findings_review_status ON findings(review_status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the finding with the given ID.
func (s *SQLite) Load(ctx context.Context, id string) (review.Finding, error) {
	query, args, err := sq.Select(findingColumns...).
		From(findingsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return review.Finding{}, fmt.Errorf("building query: %w", err)
	}

	var (
		f          review.Finding
		reviewedAt sql.NullString
		suggestion sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&f.ID, &f.Title, &f.Condition, &f.Criteria, &f.Cause, &f.Consequence, &f.Recommendation,
		&f.FinancialImpact, &f.DeclaredSeverity,
		&f.ReviewStatus, &f.ReviewNotes, &reviewedAt, &f.ModelUsed, &suggestion,
		&f.RootCauseAnalysis, &f.RecommendationRefinement, &f.RiskNarrative, &f.SeverityMismatch,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Finding{}, fmt.Errorf("%s: %w", id, review.ErrNotFound)
	}
	if err != nil {
		return review.Finding{}, fmt.Errorf("loading finding %s: %w", id, err)
	}

	if reviewedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, reviewedAt.String)
		if err != nil {
			return review.Finding{}, fmt.Errorf("finding %s: bad reviewed_at: %w", id, err)
		}
		f.ReviewedAt = &t
	}
	if suggestion.Valid {
		sev := review.Severity(suggestion.String)
		f.SeveritySuggestion = &sev
	}
	return f, nil
}

// Save inserts or replaces the finding.
func (s *SQLite) Save(ctx context.Context, f review.Finding) error {
	if f.ID == "" {
		return errors.New("finding has no id")
	}
	status := f.ReviewStatus
	if status == "" {
		status = review.StatusPending
	}
	var reviewedAt, suggestion any
	if f.ReviewedAt != nil {
		reviewedAt = f.ReviewedAt.UTC().Format(time.RFC3339Nano)
	}
	if f.SeveritySuggestion != nil {
		suggestion = string(*f.SeveritySuggestion)
	}

	query, args, err := sq.Insert(findingsTable).
		Columns(findingColumns...).
		Values(
			f.ID, f.Title, f.Condition, f.Criteria, f.Cause, f.Consequence, f.Recommendation,
			f.FinancialImpact, string(f.DeclaredSeverity),
			string(status), f.ReviewNotes, reviewedAt, f.ModelUsed, suggestion,
			f.RootCauseAnalysis, f.RecommendationRefinement, f.RiskNarrative, f.SeverityMismatch,
		).
		Suffix(upsertClause()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving finding %s: %w", f.ID, err)
	}
	return nil
}

// ListIDs returns finding IDs, optionally filtered by review status.
func (s *SQLite) ListIDs(ctx context.Context, status review.Status, limit int) ([]string, error) {
	b := sq.Select("id").From(findingsTable).OrderBy("id")
	if status != "" {
		b = b.Where(sq.Eq{"review_status": string(status)})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

func upsertClause() string {
	clause := "ON CONFLICT(id) DO UPDATE SET "
	for i, col := range findingColumns[1:] {
		if i > 0 {
			clause += ", "
		}
		clause += col + " = excluded." + col
	}
	return clause
}
