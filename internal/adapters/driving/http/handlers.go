package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swaggo/swag"

	// registers the OpenAPI document
	_ "github.com/custodia-labs/receiptflow/docs"
	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports each dependency's health
// @Description Readiness response
type ReadyResponse struct {
	Status string             `json:"status" example:"ready"`
	Checks map[string]string  `json:"checks,omitempty"`
	Queue  *driven.QueueStats `json:"queue,omitempty"`
}

// statser is implemented by task queues; /ready reports their counts.
type statser interface {
	Stats(ctx context.Context) (*driven.QueueStats, error)
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// TaskResponse acknowledges a queued task
// @Description Queued task
type TaskResponse struct {
	TaskID string `json:"task_id" example:"5b0f2b64-3c2e-5b7e-9f51-1d1c35a3a8e0"`
	Type   string `json:"type" example:"poll"`
}

// RowsResponse lists a period's ledger
// @Description Period ledger
type RowsResponse struct {
	Period string             `json:"period" example:"2025-09"`
	Header []string           `json:"header"`
	Rows   []domain.LedgerRow `json:"rows"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings every configured backend and reports task queue counts
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, p := range s.checks {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "component", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
		if q, ok := p.(statser); ok {
			if stats, err := q.Stats(ctx); err == nil {
				resp.Queue = stats
			}
		}
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "api document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

// Ingress

// handleIngress godoc
// @Summary      Submit a discovered file
// @Description  Accepts a receipts.new event. Resubmitting the same fileId and createdTime returns the same task.
// @Tags         Ingress
// @Accept       json
// @Produce      json
// @Security     APIKeyAuth
// @Param        request  body      domain.DiscoveryEvent  true  "Discovery event"
// @Success      200      {object}  domain.IngressResult
// @Failure      400      {object}  ErrorResponse  "Invalid event"
// @Failure      401      {object}  ErrorResponse  "Missing or wrong API key"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /ingress [post]
func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngressBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) > maxIngressBody {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := s.ingressService.Submit(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, err, "failed to accept event")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Source endpoints

// handleListSources godoc
// @Summary      List watched sources
// @Tags         Sources
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.ScheduledPoll
// @Failure      401  {object}  ErrorResponse
// @Router       /sources [get]
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sourceService.Sources(r.Context()))
}

// handleGetWatermark godoc
// @Summary      Get a source's discovery state
// @Tags         Sources
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Source ID"
// @Success      200  {object}  domain.WatermarkState
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse  "Unknown source"
// @Router       /sources/{id}/watermark [get]
func (s *Server) handleGetWatermark(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	state, err := s.sourceService.Watermark(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load watermark")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// handleTriggerPoll godoc
// @Summary      Poll a source now
// @Description  Enqueues an immediate poll task (admin only)
// @Tags         Sources
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Source ID"
// @Success      202  {object}  TaskResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse  "Unknown source"
// @Router       /sources/{id}/poll [post]
func (s *Server) handleTriggerPoll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := s.sourceService.TriggerPoll(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to trigger poll")
		return
	}

	writeJSON(w, http.StatusAccepted, TaskResponse{TaskID: task.ID, Type: string(task.Type)})
}

// Period endpoints

// handleListAggregates godoc
// @Summary      List period aggregates
// @Tags         Periods
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.PeriodAggregate
// @Failure      401  {object}  ErrorResponse
// @Router       /periods [get]
func (s *Server) handleListAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.aggregateService.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to list aggregates")
		return
	}
	if aggs == nil {
		aggs = []*domain.PeriodAggregate{}
	}
	writeJSON(w, http.StatusOK, aggs)
}

// handleGetAggregate godoc
// @Summary      Get a period aggregate
// @Tags         Periods
// @Produce      json
// @Security     BearerAuth
// @Param        period  path      string  true  "Period (YYYY-MM)"
// @Param        If-None-Match  header  string  false  "ETag of a previous response"
// @Success      200     {object}  domain.PeriodAggregate
// @Success      304     "Aggregate unchanged"
// @Failure      400     {object}  ErrorResponse  "Invalid period"
// @Failure      404     {object}  ErrorResponse  "No aggregate yet"
// @Router       /periods/{period}/aggregate [get]
func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := s.aggregateService.Get(r.Context(), r.PathValue("period"))
	if err != nil {
		s.writeServiceError(w, err, "failed to load aggregate")
		return
	}
	if tag, ok := s.aggregateETag(agg); ok {
		w.Header().Set("ETag", tag)
		if etagMatches(r.Header.Get("If-None-Match"), tag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, agg)
}

// aggregateETag is the quoted content fingerprint. LastUpdated is not part
// of it, so a refresh over the same rows keeps the tag.
func (s *Server) aggregateETag(agg *domain.PeriodAggregate) (string, bool) {
	fp, err := agg.Fingerprint()
	if err != nil {
		s.logger.Warn("aggregate fingerprint failed", "period", agg.Period, "error", err)
		return "", false
	}
	return `"` + fp + `"`, true
}

func etagMatches(header, tag string) bool {
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}
	return false
}

// handleRefreshAggregate godoc
// @Summary      Recompute a period aggregate
// @Description  Rebuilds the aggregate from the period's ledger and stores it (admin only)
// @Tags         Periods
// @Produce      json
// @Security     BearerAuth
// @Param        period  path      string  true  "Period (YYYY-MM)"
// @Success      200     {object}  domain.PeriodAggregate
// @Failure      400     {object}  ErrorResponse  "Invalid period"
// @Failure      403     {object}  ErrorResponse
// @Router       /periods/{period}/aggregate [post]
func (s *Server) handleRefreshAggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := s.aggregateService.Refresh(r.Context(), r.PathValue("period"))
	if err != nil {
		s.writeServiceError(w, err, "failed to refresh aggregate")
		return
	}
	if tag, ok := s.aggregateETag(agg); ok {
		w.Header().Set("ETag", tag)
	}
	writeJSON(w, http.StatusOK, agg)
}

// handleListRows godoc
// @Summary      Get a period ledger
// @Tags         Periods
// @Produce      json
// @Security     BearerAuth
// @Param        period  path      string  true  "Period (YYYY-MM)"
// @Success      200     {object}  RowsResponse
// @Failure      400     {object}  ErrorResponse  "Invalid period"
// @Router       /periods/{period}/rows [get]
func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	period := r.PathValue("period")

	rows, err := s.ledgerService.Rows(r.Context(), period)
	if err != nil {
		s.writeServiceError(w, err, "failed to load ledger")
		return
	}
	if rows == nil {
		rows = []domain.LedgerRow{}
	}

	writeJSON(w, http.StatusOK, RowsResponse{Period: period, Header: domain.LedgerHeader, Rows: rows})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps domain sentinels to status codes. Anything
// unrecognised is logged and reported as fallback with a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidAPIKey):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		s.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
