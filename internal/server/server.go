package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"infra-insight/internal/analytics"
	"infra-insight/internal/ingest"
	"infra-insight/internal/metrics"
	"infra-insight/internal/models"
	"infra-insight/internal/report"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 10 << 20
	defaultListLimit = 10
	maxListLimit     = 100
	version          = "1.0.0"
)

// Runner analyzes a snapshot batch and emits its report.
type Runner interface {
	Run(ctx context.Context, snapshots []models.Snapshot) (*models.Report, error)
}

// ReportStore is the durable report history.
type ReportStore interface {
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, limit int) ([]*models.Report, error)
	AnomalyHistory(ctx context.Context, metric string, limit int) ([]report.AnomalyRecord, error)
}

// ReportCache is the fast path for recently emitted reports.
type ReportCache interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	GetRecentReports(ctx context.Context, count int64) ([]*models.Report, error)
}

type Server struct {
	router *mux.Router
	runner Runner
	store  ReportStore
	cache  ReportCache
	log    *zap.Logger
}

// NewServer wires the HTTP API. store and cache may be nil.
func NewServer(runner Runner, store ReportStore, cache ReportCache, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		router: mux.NewRouter(),
		runner: runner,
		store:  store,
		cache:  cache,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(instrument)
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/analyze", s.analyzeHandler).Methods("POST")
	s.router.HandleFunc("/reports", s.listReportsHandler).Methods("GET")
	s.router.HandleFunc("/reports/latest", s.latestReportHandler).Methods("GET")
	s.router.HandleFunc("/reports/{id}", s.getReportHandler).Methods("GET")
	s.router.HandleFunc("/anomalies", s.anomaliesHandler).Methods("GET")
	s.router.Handle("/metrics/prometheus", promhttp.Handler())
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version,
	})
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	snapshots, err := ingest.Decode(body, ingest.FormatJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.runner.Run(r.Context(), snapshots)
	switch {
	case errors.Is(err, ingest.ErrInvalidSnapshot):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, analytics.ErrEmptyInput):
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		s.log.Error("analysis run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reports, err := s.recentReports(r.Context(), limit)
	if err != nil {
		s.log.Error("list reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// anomaliesHandler serves the persisted anomaly history of one metric,
// newest first.
func (s *Server) anomaliesHandler(w http.ResponseWriter, r *http.Request) {
	metric, err := analytics.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []report.AnomalyRecord{})
		return
	}

	history, err := s.store.AnomalyHistory(r.Context(), string(metric), limit)
	if err != nil {
		s.log.Error("anomaly history failed", zap.String("metric", string(metric)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return min(n, maxListLimit), nil
}

func (s *Server) latestReportHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := s.recentReports(r.Context(), 1)
	if err != nil {
		s.log.Error("latest report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(reports) == 0 {
		writeError(w, http.StatusNotFound, report.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, reports[0])
}

func (s *Server) getReportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	if s.cache != nil {
		rep, err := s.cache.GetReport(ctx, id)
		if err == nil {
			writeJSON(w, http.StatusOK, rep)
			return
		}
		if !errors.Is(err, report.ErrNotFound) {
			s.log.Warn("cache lookup failed", zap.String("report_id", id), zap.Error(err))
		}
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, report.ErrNotFound)
		return
	}

	rep, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, report.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		s.log.Error("store lookup failed", zap.String("report_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

// recentReports prefers the cache and falls back to the store when the
// cache is absent, failing or empty.
func (s *Server) recentReports(ctx context.Context, limit int) ([]*models.Report, error) {
	if s.cache != nil {
		reports, err := s.cache.GetRecentReports(ctx, int64(limit))
		if err == nil && len(reports) > 0 {
			return reports, nil
		}
		if err != nil {
			s.log.Warn("cache listing failed", zap.Error(err))
		}
	}
	if s.store == nil {
		return []*models.Report{}, nil
	}
	return s.store.List(ctx, limit)
}

// Run serves on addr until SIGINT or SIGTERM, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) Run(addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var shutdownErr error
	go func() {
		<-quit
		s.log.Info("server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("could not gracefully shutdown the server: %w", err)
		}
		close(done)
	}()

	s.log.Info("server is ready to handle requests", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	<-done
	s.log.Info("server stopped")
	return shutdownErr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
