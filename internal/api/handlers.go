// Package api provides the local HTTP gateway handlers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/antiplagiat/textcheck/internal/history"
	"github.com/antiplagiat/textcheck/internal/lifecycle"
	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/antiplagiat/textcheck/internal/remote"
	"github.com/antiplagiat/textcheck/internal/report"
	"github.com/antiplagiat/textcheck/internal/request"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is the remote check service as seen by the gateway.
type Service interface {
	lifecycle.Service
	DeleteCheck(ctx context.Context, taskID string) error
	ListSources(ctx context.Context) (*models.SourceCatalog, error)
	HealthCheck(ctx context.Context) (*models.HealthStatus, error)
}

// Handler contains all HTTP handlers.
type Handler struct {
	service     Service
	builder     *request.Builder
	history     *history.Store
	pdf         report.PDFOptions
	lifecycleOp []lifecycle.Option
}

// NewHandler creates a new handler. lifecycleOpts are applied to every check the gateway runs.
func NewHandler(service Service, builder *request.Builder, store *history.Store, pdf report.PDFOptions, lifecycleOpts ...lifecycle.Option) *Handler {
	return &Handler{
		service:     service,
		builder:     builder,
		history:     store,
		pdf:         pdf,
		lifecycleOp: lifecycleOpts,
	}
}

func (h *Handler) newLifecycle(extra ...lifecycle.Option) *lifecycle.Lifecycle {
	opts := append([]lifecycle.Option{
		lifecycle.WithBuilder(h.builder),
		lifecycle.WithHistory(h.history),
	}, h.lifecycleOp...)
	opts = append(opts, extra...)
	return lifecycle.New(h.service, opts...)
}

// HealthCheck returns the gateway health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRequest is the gateway submission body. Absent options keep the configured defaults.
type checkRequest struct {
	Text                string       `json:"text"`
	Mode                *models.Mode `json:"mode"`
	Lang                *models.Lang `json:"lang"`
	ExcludeQuotes       *bool        `json:"exclude_quotes"`
	ExcludeBibliography *bool        `json:"exclude_bibliography"`
}

// CreateCheck validates and submits a text.
func (h *Handler) CreateCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	l := h.newLifecycle()
	defer l.Close()

	task, err := l.Submit(r.Context(), req.Text, request.Options{
		Mode:                req.Mode,
		Lang:                req.Lang,
		ExcludeQuotes:       req.ExcludeQuotes,
		ExcludeBibliography: req.ExcludeBibliography,
	})
	if err != nil {
		var verr *request.ValidationError
		if errors.As(err, &verr) {
			// the text goes back so the caller never loses it
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":     verr.Error(),
				"reason":    verr.Reason,
				"length":    verr.Length,
				"shortfall": verr.Shortfall,
				"text":      req.Text,
			})
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Check submission failed")
		writeJSON(w, statusFor(err), map[string]interface{}{
			"error": messageFor(err),
			"text":  req.Text,
		})
		return
	}

	// the report is fetched by a later request, which never sees the text
	h.history.RememberPreview(task.TaskID, l.Text())

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id":                task.TaskID,
		"status":                 task.Status,
		"estimated_time_seconds": task.EstimatedTimeSeconds,
		"report_url":             "/api/v1/checks/" + task.TaskID + "/report",
	})
}

// fetchView runs a hand-off lifecycle for the task in the URL and derives its view.
// It writes the error response itself and returns nil on failure.
func (h *Handler) fetchView(w http.ResponseWriter, r *http.Request) *report.View {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return nil
	}

	l := h.newLifecycle(lifecycle.WithPreview(h.history.PendingPreview(id)))
	defer l.Close()

	result, err := l.Fetch(r.Context(), id)
	if err != nil {
		var f *lifecycle.Failure
		if errors.As(err, &f) && f.Kind == lifecycle.FailNotFound {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":     messageFor(err),
				"new_check": "/api/v1/checks",
			})
			return nil
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("task_id", id).Msg("Failed to fetch report")
		writeError(w, statusFor(err), messageFor(err))
		return nil
	}
	return report.Derive(result)
}

// GetReport returns the derived report view as JSON.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	view := h.fetchView(w, r)
	if view == nil {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetReportHTML renders the report as an HTML page.
func (h *Handler) GetReportHTML(w http.ResponseWriter, r *http.Request) {
	view := h.fetchView(w, r)
	if view == nil {
		return
	}

	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, view, ""); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render HTML report")
		writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GetReportPDF renders the report as a PDF download.
func (h *Handler) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	view := h.fetchView(w, r)
	if view == nil {
		return
	}

	data, err := report.RenderPDF(view, h.pdf)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to render PDF report")
		writeError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": "report-" + view.TaskID + ".pdf",
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteCheck deletes a check on the service and drops it from local history.
// The local entry stays when the service could not delete it.
func (h *Handler) DeleteCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := h.service.DeleteCheck(r.Context(), id); err != nil {
		if remote.IsNotFound(err) {
			h.history.Remove(id)
		} else {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("task_id", id).Msg("Failed to delete check")
		}
		writeError(w, statusFor(err), messageFor(err))
		return
	}
	h.history.Remove(id)

	zerolog.Ctx(r.Context()).Info().Str("task_id", id).Msg("Check deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Check deleted"})
}

// ListHistory returns the local check history, most recent first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	items := h.history.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// ClearHistory removes the local check history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.history.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ListSources proxies the service's source catalog.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.ListSources(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Source catalog unavailable")
		writeError(w, http.StatusBadGateway, messageFor(err))
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// UpstreamHealth proxies the service's health endpoint.
func (h *Handler) UpstreamHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.HealthCheck(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Check service health unavailable")
		writeError(w, http.StatusBadGateway, messageFor(err))
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// statusFor maps a core error to the gateway response status.
func statusFor(err error) int {
	var f *lifecycle.Failure
	if errors.As(err, &f) && f.Kind == lifecycle.FailTimeout {
		return http.StatusGatewayTimeout
	}
	var rerr *remote.Error
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case remote.KindNotFound:
			return http.StatusNotFound
		case remote.KindHTTPStatus:
			if rerr.StatusCode == http.StatusTooManyRequests {
				return http.StatusTooManyRequests
			}
		}
	}
	return http.StatusBadGateway
}

// messageFor returns the user-facing message for a core error.
func messageFor(err error) string {
	var rerr *remote.Error
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	var f *lifecycle.Failure
	if errors.As(err, &f) {
		switch f.Kind {
		case lifecycle.FailTimeout:
			return "The check is taking too long, try again later"
		case lifecycle.FailNotFound:
			return "Check not found or expired"
		}
	}
	return "The check service is unavailable"
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
