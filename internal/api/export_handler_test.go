package api

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/prospect-api/internal/domain"
)

func exportFixtures() []*domain.Company {
	runID := "run-1"
	fitHigh, fitLow := "9/10", "2/10"
	created := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	return []*domain.Company{
		{
			ID:        uuid.New(),
			URL:       "https://good.example.com",
			RunID:     &runID,
			Status:    domain.CompanyStatusCompleted,
			FitScore:  &fitHigh,
			CreatedAt: created,
			UpdatedAt: created,
		},
		{
			ID:        uuid.New(),
			URL:       "https://poor.example.com",
			RunID:     &runID,
			Status:    domain.CompanyStatusCompleted,
			FitScore:  &fitLow,
			CreatedAt: created,
			UpdatedAt: created,
		},
		{
			ID:        uuid.New(),
			URL:       "https://pending.example.com",
			Status:    domain.CompanyStatusPending,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}
}

func TestExportCompanies(t *testing.T) {
	t.Parallel()

	t.Run("csv by default", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")

		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 4, "header plus three rows")
	})

	t.Run("xlsx format", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?format=xlsx", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
		assert.NotZero(t, rec.Body.Len())
	})

	t.Run("fit score filter applies", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?fit_score_min=5", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "https://good.example.com", records[1][0])
	})

	t.Run("status filter applies", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?status=pending", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		records, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "https://pending.example.com", records[1][0])
	})

	t.Run("unknown format rejected", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?format=pdf", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad filter parameter rejected", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?fit_score_min=high", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		t.Parallel()

		handler := NewExportHandler(&fakeService{companies: exportFixtures()}, silentLogger())

		req := httptest.NewRequest(http.MethodGet, "/api/companies/export?status=archived", nil)
		rec := httptest.NewRecorder()
		handler.ExportCompanies(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
