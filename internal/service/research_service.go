// Package service orchestrates the research job lifecycle: submission to the
// external processor and finalization from either the webhook or the
// reconciler path.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/platform/parallel"
	"github.com/prospecthq/prospect-api/internal/store"
)

// defaultFailureReason is recorded when the processor reports a failure
// without a message.
const defaultFailureReason = "Task failed"

// ProcessorClient is the surface of the external processor this service
// depends on.
type ProcessorClient interface {
	// CreateRun dispatches a research run and returns the processor's run ID.
	CreateRun(ctx context.Context, companyID uuid.UUID, companyURL string) (string, error)

	// FetchResult retrieves the full result document for a completed run.
	FetchResult(ctx context.Context, runID string) (*domain.ResearchOutput, error)

	// GetRunStatus queries the processor for a run's current status.
	GetRunStatus(ctx context.Context, runID string) (*parallel.RunStatus, error)
}

// Analyzer derives optional enrichment from a completed research result.
type Analyzer interface {
	AnalyzeFit(ctx context.Context, output *domain.ResearchOutput) (*domain.FitAnalysis, error)
}

// ResearchService owns submission and finalization of company research jobs.
// Both the webhook handler and the reconciler finalize through the same two
// methods, so the two paths cannot drift apart.
type ResearchService struct {
	companyStore store.CompanyStore
	processor    ProcessorClient
	analyzer     Analyzer // nil when enrichment is not configured
	logger       *slog.Logger
}

// NewResearchService creates a ResearchService. analyzer may be nil, in which
// case completions carry no enrichment.
func NewResearchService(
	companyStore store.CompanyStore,
	processor ProcessorClient,
	analyzer Analyzer,
	logger *slog.Logger,
) (*ResearchService, error) {
	if companyStore == nil {
		return nil, errors.New("company store cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &ResearchService{
		companyStore: companyStore,
		processor:    processor,
		analyzer:     analyzer,
		logger:       logger.With(slog.String("component", "research_service")),
	}, nil
}

// Submit creates a pending company for the URL, dispatches a research run,
// and records the run ID while advancing the row to processing.
//
// A duplicate URL surfaces as store.ErrURLExists so callers can branch on the
// conflict. If the dispatch call fails the provisional row is removed again
// (best effort) and ErrDispatchFailed is returned: the submission as a whole
// failed and may simply be retried.
func (s *ResearchService) Submit(ctx context.Context, url string) (*domain.Company, error) {
	company, err := domain.NewCompany(url)
	if err != nil {
		return nil, err
	}

	if err := s.companyStore.Create(ctx, company); err != nil {
		return nil, err
	}

	runID, err := s.processor.CreateRun(ctx, company.ID, company.URL)
	if err != nil {
		s.logger.Error("dispatch failed, removing provisional company",
			slog.String("company_id", company.ID.String()),
			slog.String("url", url),
			slog.String("error", err.Error()))

		if delErr := s.companyStore.Delete(ctx, company.ID); delErr != nil {
			// The stale-pending sweep picks this row up later.
			s.logger.Error("failed to remove provisional company after dispatch failure",
				slog.String("company_id", company.ID.String()),
				slog.String("error", delErr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	if err := s.companyStore.MarkProcessing(ctx, company.ID, runID); err != nil {
		return nil, fmt.Errorf("failed to record run ID: %w", err)
	}

	company.RunID = &runID
	company.Status = domain.CompanyStatusProcessing
	return company, nil
}

// CompleteFromRun finalizes a company whose run the processor reports as
// completed: fetch the result document, attempt enrichment, and apply the
// terminal transition.
//
// A result fetch failure aborts processing for this company (wrapped as
// ErrResultFetchFailed) and leaves it in its current state for a later sweep.
// Enrichment failures are logged and swallowed; they never block completion.
// The terminal write itself is idempotent, so the webhook and reconciler
// observing the same completion is harmless.
func (s *ResearchService) CompleteFromRun(ctx context.Context, companyID uuid.UUID, runID string) error {
	output, err := s.processor.FetchResult(ctx, runID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResultFetchFailed, err)
	}

	analysis := s.analyze(ctx, companyID, output)

	if err := s.companyStore.MarkCompleted(ctx, companyID, runID, output.Raw, analysis); err != nil {
		return fmt.Errorf("failed to finalize company %s: %w", companyID, err)
	}

	s.logger.Info("company research completed",
		slog.String("company_id", companyID.String()),
		slog.String("run_id", runID),
		slog.Bool("enriched", analysis != nil))
	return nil
}

// FailRun finalizes a company whose run the processor reports as failed,
// with the same idempotence semantics as CompleteFromRun. An empty reason
// falls back to a generic message.
func (s *ResearchService) FailRun(ctx context.Context, companyID uuid.UUID, runID string, reason string) error {
	if reason == "" {
		reason = defaultFailureReason
	}

	if err := s.companyStore.MarkFailed(ctx, companyID, runID, reason); err != nil {
		return fmt.Errorf("failed to record failure for company %s: %w", companyID, err)
	}

	s.logger.Info("company research failed",
		slog.String("company_id", companyID.String()),
		slog.String("run_id", runID),
		slog.String("reason", reason))
	return nil
}

// analyze runs the best-effort enrichment step. Any failure returns nil so
// the completion proceeds with empty enrichment fields.
func (s *ResearchService) analyze(ctx context.Context, companyID uuid.UUID, output *domain.ResearchOutput) *domain.FitAnalysis {
	if s.analyzer == nil {
		return nil
	}

	analysis, err := s.analyzer.AnalyzeFit(ctx, output)
	if err != nil {
		s.logger.Warn("fit analysis failed, completing without enrichment",
			slog.String("company_id", companyID.String()),
			slog.String("error", err.Error()))
		return nil
	}
	return analysis
}

// GetCompany retrieves a single company.
func (s *ResearchService) GetCompany(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	return s.companyStore.GetByID(ctx, id)
}

// ListCompanies retrieves all companies, newest first.
func (s *ResearchService) ListCompanies(ctx context.Context) ([]*domain.Company, error) {
	return s.companyStore.List(ctx)
}

// DeleteCompany removes a company and its research record.
func (s *ResearchService) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	return s.companyStore.Delete(ctx, id)
}
