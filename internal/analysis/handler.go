package analysis

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/costwise/costwise/internal/analytics"
	"github.com/costwise/costwise/internal/dataset"
	"github.com/costwise/costwise/internal/fifo"
	"github.com/costwise/costwise/internal/fx"
	"github.com/costwise/costwise/internal/platform/httpx"
)

// Handler exposes the analysis API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	maxUpload int64
}

// NewHandler builds Handler instance. maxUpload bounds the accepted
// request body in bytes; non-positive values fall back to 20 MiB.
func NewHandler(logger *slog.Logger, service *Service, maxUpload int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Handler{logger: logger, service: service, maxUpload: maxUpload}
}

// MountRoutes registers analysis routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/analyses", h.handleUpload)
	r.Get("/analyses/{id}", h.handleGet)
	r.Delete("/analyses/{id}", h.handleDelete)
	r.Get("/analyses/{id}/report", h.handleReport)
	r.Get("/analyses/{id}/explain/{code}", h.handleExplain)
	r.Get("/analyses/{id}/state", h.handleState)
	r.Get("/analyses/{id}/warnings", h.handleWarnings)
	r.Get("/analyses/{id}/issues", h.handleIssues)
}

type analysisSummary struct {
	ID           string                 `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	Filename     string                 `json:"filename"`
	Sheets       []string               `json:"sheets"`
	Counts       analytics.RecordCounts `json:"counts"`
	WarningCount int                    `json:"warning_count"`
	IssueCount   int                    `json:"issue_count"`
}

func summarize(res *Result) analysisSummary {
	ds := res.Dataset
	return analysisSummary{
		ID:        res.ID,
		CreatedAt: res.CreatedAt,
		Filename:  res.Filename,
		Sheets:    ds.Sheets,
		Counts: analytics.RecordCounts{
			Products:    len(ds.Products),
			Sales:       len(ds.Sales),
			SaleItems:   len(ds.SaleItems),
			Purchases:   len(ds.Purchases),
			Receptions:  len(ds.Receptions),
			Shrinkages:  len(ds.Shrinkages),
			Expenses:    len(ds.Expenses),
			Withdrawals: len(ds.Withdrawals),
			Issues:      len(ds.Issues),
		},
		WarningCount: len(res.Engine.Warnings()),
		IssueCount:   len(ds.Issues),
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Upload", "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".xls" {
		httpx.Problem(w, http.StatusUnsupportedMediaType, "Unsupported File", "only .xlsx and .xls workbooks are accepted")
		return
	}

	res, err := h.service.Process(r.Context(), file, header.Filename)
	if err != nil {
		h.logger.Error("process upload", slog.String("filename", header.Filename), slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unreadable Workbook", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, summarize(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summarize(res))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var rate float64
	if raw := q.Get("rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", "rate must be a positive number")
			return
		}
		rate = parsed
	}

	filter, err := parseFilter(q.Get("from"), q.Get("to"), q.Get("entity"), q.Get("product"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}

	report, err := h.service.Report(r.Context(), chi.URLParam(r, "id"), rate, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.ParseInt(chi.URLParam(r, "code"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Product Code", "code must be an integer")
		return
	}
	explain, err := h.service.Explain(chi.URLParam(r, "id"), code)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, explain)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, state)
}

func (h *Handler) handleWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.service.Warnings(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if warnings == nil {
		warnings = []fifo.Warning{}
	}
	httpx.JSON(w, http.StatusOK, warnings)
}

func (h *Handler) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.Issues(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if issues == nil {
		issues = []dataset.ParseIssue{}
	}
	httpx.JSON(w, http.StatusOK, issues)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAnalysisNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, fx.ErrInvalidRate):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
	default:
		h.logger.Error("analysis request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseFilter(from, to, entity, product string) (analytics.Filter, error) {
	var filter analytics.Filter
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return filter, errors.New("from must be YYYY-MM-DD")
		}
		filter.From = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return filter, errors.New("to must be YYYY-MM-DD")
		}
		// Include the whole day.
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &end
	}
	filter.Entity = entity
	if product != "" {
		code, err := strconv.ParseInt(product, 10, 64)
		if err != nil {
			return filter, errors.New("product must be an integer code")
		}
		filter.ProductCode = code
	}
	return filter, nil
}
