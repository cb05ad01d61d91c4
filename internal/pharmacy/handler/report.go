package handler

import (
	"net/http"
	"strconv"

	"github.com/curamed/curamed-backend/internal/pharmacy/service"
	"github.com/curamed/curamed-backend/pkg/errors"
	"github.com/curamed/curamed-backend/pkg/httputil"
	"github.com/curamed/curamed-backend/pkg/logger"
)

// ReportHandler handles alert report endpoints
type ReportHandler struct {
	scanner *service.AlertScanner
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(scanner *service.AlertScanner, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		scanner: scanner,
		logger:  log,
	}
}

// Alerts returns the combined low-stock and near-expiry report
func (h *ReportHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	windowDays := 0
	if raw := r.URL.Query().Get("expiringInDays"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			httputil.Error(w, errors.BadRequest("expiringInDays must be a positive integer"))
			return
		}
		windowDays = days
	}

	report, err := h.scanner.Report(r.Context(), windowDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}
