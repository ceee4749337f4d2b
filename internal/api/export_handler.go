package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prospecthq/prospect-api/internal/api/shared"
	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/export"
	"github.com/prospecthq/prospect-api/internal/platform/logger"
)

// ExportHandler renders the filtered company list as a CSV or XLSX download.
type ExportHandler struct {
	service ResearchService
	logger  *slog.Logger
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(service ResearchService, logger *slog.Logger) *ExportHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("service cannot be nil for ExportHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ExportHandler")
	}

	return &ExportHandler{
		service: service,
		logger:  logger.With(slog.String("component", "export_handler")),
	}
}

// ExportCompanies handles GET /api/companies/export.
//
// Query parameters:
//
//	format         csv (default) or xlsx
//	status         comma-separated statuses
//	fit_score_min  lower bound on the numeric fit score
//	fit_score_max  upper bound on the numeric fit score
//	date_from      creation date lower bound (YYYY-MM-DD)
//	date_to        creation date upper bound, inclusive (YYYY-MM-DD)
//	employee_min   lower bound on the employee count
//	employee_max   upper bound on the employee count
func (h *ExportHandler) ExportCompanies(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	filter, err := parseExportFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	filtered := filter.Apply(companies)

	log.Info("exporting companies",
		slog.String("format", format),
		slog.Int("total", len(companies)),
		slog.Int("exported", len(filtered)))

	filename := export.Filename(format, time.Now().UTC())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(w, filtered)
	default:
		w.Header().Set("Content-Type", "text/csv")
		err = export.WriteCSV(w, filtered)
	}
	if err != nil {
		// Headers are already out; all that is left is to log.
		log.Error("failed to write export",
			slog.String("format", format),
			slog.String("error", err.Error()))
	}
}

// parseExportFilter builds an export.Filter from the request query.
func parseExportFilter(r *http.Request) (*export.Filter, error) {
	q := r.URL.Query()
	filter := &export.Filter{}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.CompanyStatus(strings.TrimSpace(s))
			switch status {
			case domain.CompanyStatusPending, domain.CompanyStatusProcessing,
				domain.CompanyStatusCompleted, domain.CompanyStatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return nil, fmt.Errorf("unknown status %q", s)
			}
		}
	}

	var err error
	if filter.FitScoreMin, err = intParam(q.Get("fit_score_min"), "fit_score_min"); err != nil {
		return nil, err
	}
	if filter.FitScoreMax, err = intParam(q.Get("fit_score_max"), "fit_score_max"); err != nil {
		return nil, err
	}
	if filter.EmployeeMin, err = intParam(q.Get("employee_min"), "employee_min"); err != nil {
		return nil, err
	}
	if filter.EmployeeMax, err = intParam(q.Get("employee_max"), "employee_max"); err != nil {
		return nil, err
	}
	if filter.DateFrom, err = dateParam(q.Get("date_from"), "date_from"); err != nil {
		return nil, err
	}
	if filter.DateTo, err = dateParam(q.Get("date_to"), "date_to"); err != nil {
		return nil, err
	}

	return filter, nil
}

func intParam(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}

func dateParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", name)
	}
	t = t.UTC()
	return &t, nil
}
