// Package handlers exposes the detection pipeline over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promoguard/fraud-engine/internal/analyzer"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/report"
	"github.com/promoguard/fraud-engine/internal/sample"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

// Handler wires the HTTP API to the pipeline components.
type Handler struct {
	analyzer  *analyzer.Analyzer
	reports   *report.Generator
	hub       *notification.DashboardHub
	collector *metrics.Collector
	logger    *slog.Logger
	startedAt time.Time
}

// New creates the HTTP handler set. hub may be nil when the dashboard
// channel is disabled.
func New(
	an *analyzer.Analyzer,
	reports *report.Generator,
	hub *notification.DashboardHub,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		analyzer:  an,
		reports:   reports,
		hub:       hub,
		collector: collector,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Routes builds the router for the service.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logging)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analyze", h.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/history/{promoterID}/{campaignID}", h.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/reports/daily", h.handleDailyReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/weekly", h.handleWeeklyReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/monthly", h.handleMonthlyReport).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(h.collector.Registry(), promhttp.HandlerOpts{}))
	if h.hub != nil {
		r.HandleFunc("/ws", h.hub.ServeWS)
	}
	return r
}

// analyzeResponse is the POST /analyze reply body.
type analyzeResponse struct {
	Analysis *scoring.BotAnalysis  `json:"analysis"`
	Action   *scoring.ActionResult `json:"action"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var s sample.EngagementSample
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if s.ObservedAt.IsZero() {
		s.ObservedAt = time.Now().UTC()
	}

	analysis, result, err := h.analyzer.Analyze(r.Context(), s)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis, Action: result})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	analyses, err := h.analyzer.History(r.Context(), vars["promoterID"], vars["campaignID"])
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"promoter_id": vars["promoterID"],
		"campaign_id": vars["campaignID"],
		"count":       len(analyses),
		"analyses":    analyses,
	})
}

func (h *Handler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	t, ok := h.parseDate(w, r, "date", "2006-01-02")
	if !ok {
		return
	}
	rep, err := h.reports.Daily(r.Context(), t)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	t, ok := h.parseDate(w, r, "date", "2006-01-02")
	if !ok {
		return
	}
	rep, err := h.reports.Weekly(r.Context(), t)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	t, ok := h.parseDate(w, r, "month", "2006-01")
	if !ok {
		return
	}
	rep, err := h.reports.Monthly(r.Context(), t)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

// parseDate reads an optional query parameter in the given layout,
// defaulting to now.
func (h *Handler) parseDate(w http.ResponseWriter, r *http.Request, param, layout string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Now().UTC(), true
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid "+param+" parameter, expected "+layout)
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// logging is the request logging middleware.
func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
