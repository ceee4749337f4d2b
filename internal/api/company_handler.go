// Package api provides the HTTP handlers for the company research API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/prospecthq/prospect-api/internal/api/shared"
	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/platform/logger"
	"github.com/prospecthq/prospect-api/internal/store"
)

// CompanyResponse is the API representation of a company research job.
type CompanyResponse struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	RunID         *string         `json:"run_id,omitempty"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	FitScore      *string         `json:"fit_score,omitempty"`
	Pitch         *string         `json:"pitch,omitempty"`
	EmployeeCount *string         `json:"employee_count,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func companyToResponse(company *domain.Company) CompanyResponse {
	return CompanyResponse{
		ID:            company.ID.String(),
		URL:           company.URL,
		RunID:         company.RunID,
		Status:        string(company.Status),
		Result:        company.Result,
		FitScore:      company.FitScore,
		Pitch:         company.Pitch,
		EmployeeCount: company.EmployeeCount,
		Error:         company.ErrorMessage,
		CreatedAt:     company.CreatedAt,
		UpdatedAt:     company.UpdatedAt,
	}
}

// CreateCompanyRequest is the request body for submitting a company.
type CreateCompanyRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// CompanyHandler handles company-related HTTP requests.
type CompanyHandler struct {
	service  ResearchService
	validate *validator.Validate
	logger   *slog.Logger
}

// ResearchService is the service surface the handlers call into.
type ResearchService interface {
	Submit(ctx context.Context, url string) (*domain.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*domain.Company, error)
	ListCompanies(ctx context.Context) ([]*domain.Company, error)
	DeleteCompany(ctx context.Context, id uuid.UUID) error
}

// NewCompanyHandler creates a CompanyHandler.
func NewCompanyHandler(service ResearchService, logger *slog.Logger) *CompanyHandler {
	if service == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("service cannot be nil for CompanyHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CompanyHandler")
	}

	return &CompanyHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "company_handler")),
	}
}

// CreateCompany handles POST /api/companies. On success the research run is
// already dispatched and the response is 202 Accepted with the processing row.
func (h *CompanyHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Debug("create company validation failed", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "A valid url is required")
		return
	}

	company, err := h.service.Submit(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, store.ErrURLExists) {
			log.Debug("duplicate company submission", slog.String("url", req.URL))
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("company submitted",
		slog.String("company_id", company.ID.String()),
		slog.String("url", company.URL))
	shared.RespondWithJSON(w, r, http.StatusAccepted, companyToResponse(company))
}

// ListCompanies handles GET /api/companies.
func (h *CompanyHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]CompanyResponse, 0, len(companies))
	for _, company := range companies {
		responses = append(responses, companyToResponse(company))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetCompany handles GET /api/companies/{id}.
func (h *CompanyHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid company ID")
		return
	}

	company, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, companyToResponse(company))
}

// DeleteCompany handles DELETE /api/companies/{id}.
func (h *CompanyHandler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid company ID")
		return
	}

	if err := h.service.DeleteCompany(r.Context(), id); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	log.Info("company deleted via API", slog.String("company_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}
