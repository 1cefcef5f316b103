package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dshills/auditlens/internal/quota"
	"github.com/dshills/auditlens/internal/review"
)

const maxBatchIDs = 500

// Reviewer runs reviews. *review.Orchestrator satisfies it.
type Reviewer interface {
	ReviewOne(ctx context.Context, id string) review.Result
	ReviewBatch(ctx context.Context, ids []string) review.BatchReport
}

// QuotaAdmin exposes the daily budget. *quota.Manager satisfies it.
type QuotaAdmin interface {
	Snapshot(ctx context.Context) (quota.State, error)
	Reset(ctx context.Context) error
}

// Lister enumerates findings by status.
type Lister interface {
	ListIDs(ctx context.Context, status review.Status, limit int) ([]string, error)
}

// Server serves the review trigger API.
type Server struct {
	reviewer Reviewer
	quota    QuotaAdmin
	lister   Lister
	logger   *slog.Logger
}

// New creates a Server. lister may be nil, which disables pending batches.
func New(reviewer Reviewer, q QuotaAdmin, lister Lister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reviewer: reviewer, quota: q, lister: lister, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/findings/{id}/review", s.reviewOne).Methods(http.MethodPost)
	v1.HandleFunc("/reviews", s.reviewBatch).Methods(http.MethodPost)
	v1.HandleFunc("/quota", s.showQuota).Methods(http.MethodGet)
	v1.HandleFunc("/quota/reset", s.resetQuota).Methods(http.MethodPost)

	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) reviewOne(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res := s.reviewer.ReviewOne(r.Context(), id)
	writeJSON(w, statusFor(res), res)
}

type batchRequest struct {
	IDs     []string `json:"ids"`
	Pending bool     `json:"pending"`
	Limit   int      `json:"limit"`
}

func (s *Server) reviewBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := req.IDs
	if req.Pending {
		if s.lister == nil {
			writeError(w, http.StatusNotImplemented, "pending batches are not available")
			return
		}
		pending, err := s.lister.ListIDs(r.Context(), review.StatusPending, req.Limit)
		if err != nil {
			s.logger.Error("listing pending findings failed", "error", err)
			writeError(w, http.StatusInternalServerError, "listing pending findings failed")
			return
		}
		ids = append(ids, pending...)
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no finding ids given")
		return
	}
	if len(ids) > maxBatchIDs {
		writeError(w, http.StatusRequestEntityTooLarge, "too many finding ids")
		return
	}

	report := s.reviewer.ReviewBatch(r.Context(), ids)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) showQuota(w http.ResponseWriter, r *http.Request) {
	state, err := s.quota.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("quota snapshot failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "quota store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, quotaView(state))
}

func (s *Server) resetQuota(w http.ResponseWriter, r *http.Request) {
	if err := s.quota.Reset(r.Context()); err != nil {
		s.logger.Error("quota reset failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "quota store unavailable")
		return
	}
	state, err := s.quota.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "quota store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, quotaView(state))
}

type quotaResponse struct {
	Date      string `json:"date"`
	CallsUsed int    `json:"callsUsed"`
	CallsMax  int    `json:"callsMax"`
	Remaining int    `json:"remaining"`
}

func quotaView(s quota.State) quotaResponse {
	return quotaResponse{Date: s.Date, CallsUsed: s.CallsUsed, CallsMax: s.CallsMax, Remaining: s.Remaining()}
}

// statusFor maps a review result to an HTTP status. Failed reviews still
// carry the result body so callers can read the reason.
func statusFor(res review.Result) int {
	if res.OK() {
		return http.StatusOK
	}
	switch res.Reason {
	case "not_found":
		return http.StatusNotFound
	case "quota":
		return http.StatusTooManyRequests
	case "rate_limited", "canceled":
		return http.StatusServiceUnavailable
	case "exhausted", "hard_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
