package audithttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

const exportLimit = 200

// QueryService defines the audit trail read contract.
type QueryService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Page, error)
}

// Handler serves audit log queries.
type Handler struct {
	logger  *slog.Logger
	service QueryService
	rbac    rbac.Middleware
}

// NewHandler builds an audit Handler.
func NewHandler(logger *slog.Logger, service QueryService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidFilter) {
			h.handleFilterError(w, err)
			return
		}
		h.handleServerError(w, "query audit logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	filters.Page = 1
	filters.Limit = exportLimit
	page, err := h.service.Query(r.Context(), filters)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidFilter) {
			h.handleFilterError(w, err)
			return
		}
		h.handleServerError(w, "export audit logs", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-logs.csv\"")
	if err := writeCSV(w, page.Entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func writeCSV(w http.ResponseWriter, entries []audit.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"created_at", "actor_id", "action", "resource", "resource_id", "status", "ip_address", "user_agent", "details"}); err != nil {
		return err
	}
	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.ActorID,
			e.Action,
			e.Resource,
			e.ResourceID,
			string(e.Status),
			e.IPAddress,
			e.UserAgent,
			string(details),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseFilters reads userId, action, resource, status, startDate, endDate,
// page and limit from the query string.
func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	filters := audit.Filters{
		ActorID:  strings.TrimSpace(q.Get("userId")),
		Action:   strings.TrimSpace(q.Get("action")),
		Resource: strings.TrimSpace(q.Get("resource")),
		Status:   audit.Status(strings.TrimSpace(q.Get("status"))),
	}
	var err error
	if filters.From, err = parseDate(q.Get("startDate"), false); err != nil {
		return audit.Filters{}, validationError{field: "startDate"}
	}
	if filters.To, err = parseDate(q.Get("endDate"), true); err != nil {
		return audit.Filters{}, validationError{field: "endDate"}
	}
	if filters.Page, err = parsePositive(q.Get("page")); err != nil || filters.Page > shared.MaxPage {
		return audit.Filters{}, validationError{field: "page"}
	}
	if filters.Limit, err = parsePositive(q.Get("limit")); err != nil {
		return audit.Filters{}, validationError{field: "limit"}
	}
	return filters, nil
}

// parseDate accepts RFC3339 timestamps or plain dates; a plain end date covers
// the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parsePositive(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "Invalid filter", Code: "INVALID_FILTER", Fields: map[string]string{v.field: v.Error()}})
		return
	}
	httpx.Error(w, http.StatusBadRequest, err.Error(), "INVALID_FILTER")
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.Error(w, http.StatusInternalServerError, "Failed to retrieve audit logs", "INTERNAL")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
