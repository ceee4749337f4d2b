package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/platform/parallel"
	"github.com/prospecthq/prospect-api/internal/store"
)

// fakeCompanyStore is an in-memory CompanyStore with error injection.
type fakeCompanyStore struct {
	companies map[uuid.UUID]*domain.Company

	createErr error
	deleteErr error

	deleted        []uuid.UUID
	completedCalls int
	failedCalls    int
}

func newFakeCompanyStore() *fakeCompanyStore {
	return &fakeCompanyStore{companies: make(map[uuid.UUID]*domain.Company)}
}

func (f *fakeCompanyStore) Create(_ context.Context, company *domain.Company) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.companies {
		if existing.URL == company.URL {
			return store.ErrURLExists
		}
	}
	cp := *company
	f.companies[company.ID] = &cp
	return nil
}

func (f *fakeCompanyStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Company, error) {
	company, ok := f.companies[id]
	if !ok {
		return nil, store.ErrCompanyNotFound
	}
	cp := *company
	return &cp, nil
}

func (f *fakeCompanyStore) List(_ context.Context) ([]*domain.Company, error) {
	out := make([]*domain.Company, 0, len(f.companies))
	for _, c := range f.companies {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCompanyStore) ListByStatus(_ context.Context, status domain.CompanyStatus) ([]*domain.Company, error) {
	var out []*domain.Company
	for _, c := range f.companies {
		if c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCompanyStore) ListStalePending(_ context.Context, cutoff time.Time) ([]*domain.Company, error) {
	var out []*domain.Company
	for _, c := range f.companies {
		if c.Status == domain.CompanyStatusPending && c.RunID == nil && c.CreatedAt.Before(cutoff) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCompanyStore) Delete(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.companies[id]; !ok {
		return store.ErrCompanyNotFound
	}
	delete(f.companies, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCompanyStore) MarkProcessing(_ context.Context, id uuid.UUID, runID string) error {
	company, ok := f.companies[id]
	if !ok || company.Status != domain.CompanyStatusPending {
		return store.ErrCompanyNotFound
	}
	company.RunID = &runID
	company.Status = domain.CompanyStatusProcessing
	return nil
}

func (f *fakeCompanyStore) MarkCompleted(_ context.Context, id uuid.UUID, runID string, result json.RawMessage, analysis *domain.FitAnalysis) error {
	f.completedCalls++
	company, ok := f.companies[id]
	if !ok {
		return store.ErrCompanyNotFound
	}
	if company.IsTerminal() {
		return nil
	}
	if company.RunID == nil {
		company.RunID = &runID
	}
	company.Status = domain.CompanyStatusCompleted
	company.Result = result
	company.ErrorMessage = nil
	if analysis != nil {
		company.FitScore = &analysis.FitScore
		company.Pitch = &analysis.Pitch
		company.EmployeeCount = analysis.EmployeeCount
	}
	return nil
}

func (f *fakeCompanyStore) MarkFailed(_ context.Context, id uuid.UUID, runID string, reason string) error {
	f.failedCalls++
	company, ok := f.companies[id]
	if !ok {
		return store.ErrCompanyNotFound
	}
	if company.IsTerminal() {
		return nil
	}
	if company.RunID == nil {
		company.RunID = &runID
	}
	company.Status = domain.CompanyStatusFailed
	company.ErrorMessage = &reason
	company.Result = nil
	return nil
}

func (f *fakeCompanyStore) WithTx(_ *sql.Tx) store.CompanyStore { return f }

// fakeProcessor is a ProcessorClient with canned responses.
type fakeProcessor struct {
	runID     string
	createErr error

	output   *domain.ResearchOutput
	fetchErr error

	status    *parallel.RunStatus
	statusErr error

	createCalls int
}

func (f *fakeProcessor) CreateRun(_ context.Context, _ uuid.UUID, _ string) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.runID, nil
}

func (f *fakeProcessor) FetchResult(_ context.Context, _ string) (*domain.ResearchOutput, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.output, nil
}

func (f *fakeProcessor) GetRunStatus(_ context.Context, _ string) (*parallel.RunStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

// fakeAnalyzer is an Analyzer with a canned response.
type fakeAnalyzer struct {
	analysis *domain.FitAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzeFit(_ context.Context, _ *domain.ResearchOutput) (*domain.FitAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newService(t *testing.T, cs store.CompanyStore, p ProcessorClient, a Analyzer) *ResearchService {
	t.Helper()
	svc, err := NewResearchService(cs, p, a, testLogger())
	require.NoError(t, err)
	return svc
}

func sampleOutput() *domain.ResearchOutput {
	return &domain.ResearchOutput{
		Raw:              json.RawMessage(`{"content":{"executive_summary":"A promising company."}}`),
		ExecutiveSummary: "A promising company.",
	}
}

func TestNewResearchService(t *testing.T) {
	t.Parallel()

	cs := newFakeCompanyStore()
	p := &fakeProcessor{runID: "r-1"}

	t.Run("nil store rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewResearchService(nil, p, nil, testLogger())
		assert.Error(t, err)
	})

	t.Run("nil processor rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewResearchService(cs, nil, nil, testLogger())
		assert.Error(t, err)
	})

	t.Run("nil analyzer allowed", func(t *testing.T) {
		t.Parallel()
		svc, err := NewResearchService(cs, p, nil, testLogger())
		assert.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	t.Run("success advances to processing with run ID", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-123"}
		svc := newService(t, cs, p, nil)

		company, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)

		assert.Equal(t, domain.CompanyStatusProcessing, company.Status)
		require.NotNil(t, company.RunID)
		assert.Equal(t, "run-123", *company.RunID)

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusProcessing, stored.Status)
	})

	t.Run("duplicate URL surfaces conflict", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-123"}
		svc := newService(t, cs, p, nil)

		_, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)

		_, err = svc.Submit(context.Background(), "https://example.com")
		assert.ErrorIs(t, err, store.ErrURLExists)
		assert.Equal(t, 1, p.createCalls, "no dispatch for the duplicate")
	})

	t.Run("invalid URL rejected before any store call", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-123"}
		svc := newService(t, cs, p, nil)

		_, err := svc.Submit(context.Background(), "")
		assert.Error(t, err)
		assert.Zero(t, p.createCalls)
	})

	t.Run("dispatch failure removes provisional row", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{createErr: errors.New("processor unavailable")}
		svc := newService(t, cs, p, nil)

		_, err := svc.Submit(context.Background(), "https://example.com")
		assert.ErrorIs(t, err, ErrDispatchFailed)
		assert.Len(t, cs.deleted, 1)
		assert.Empty(t, cs.companies, "no orphan row left behind")
	})

	t.Run("dispatch failure with failing cleanup still reports dispatch error", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		cs.deleteErr = errors.New("db down")
		p := &fakeProcessor{createErr: errors.New("processor unavailable")}
		svc := newService(t, cs, p, nil)

		_, err := svc.Submit(context.Background(), "https://example.com")
		assert.ErrorIs(t, err, ErrDispatchFailed)
	})
}

func TestCompleteFromRun(t *testing.T) {
	t.Parallel()

	submit := func(t *testing.T, svc *ResearchService) *domain.Company {
		t.Helper()
		company, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)
		return company
	}

	t.Run("completes with enrichment", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		a := &fakeAnalyzer{analysis: &domain.FitAnalysis{FitScore: "8/10", Pitch: "Great fit."}}
		svc := newService(t, cs, p, a)

		company := submit(t, svc)
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusCompleted, stored.Status)
		assert.NotNil(t, stored.Result)
		require.NotNil(t, stored.FitScore)
		assert.Equal(t, "8/10", *stored.FitScore)
	})

	t.Run("analyzer failure does not block completion", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		a := &fakeAnalyzer{err: errors.New("model overloaded")}
		svc := newService(t, cs, p, a)

		company := submit(t, svc)
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusCompleted, stored.Status)
		assert.Nil(t, stored.FitScore)
		assert.Nil(t, stored.Pitch)
	})

	t.Run("no analyzer configured", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		svc := newService(t, cs, p, nil)

		company := submit(t, svc)
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusCompleted, stored.Status)
		assert.Nil(t, stored.FitScore)
	})

	t.Run("result fetch failure aborts without state change", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", fetchErr: errors.New("503")}
		svc := newService(t, cs, p, nil)

		company := submit(t, svc)
		err := svc.CompleteFromRun(context.Background(), company.ID, "run-1")
		assert.ErrorIs(t, err, ErrResultFetchFailed)

		stored, getErr := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, getErr)
		assert.Equal(t, domain.CompanyStatusProcessing, stored.Status)
	})

	t.Run("repeated completion is a no-op", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		svc := newService(t, cs, p, nil)

		company := submit(t, svc)
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))
		assert.Equal(t, 2, cs.completedCalls)

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusCompleted, stored.Status)
	})

	t.Run("completion after failure is a no-op", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		svc := newService(t, cs, p, nil)

		company := submit(t, svc)
		require.NoError(t, svc.FailRun(context.Background(), company.ID, "run-1", "boom"))
		require.NoError(t, svc.CompleteFromRun(context.Background(), company.ID, "run-1"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "boom", *stored.ErrorMessage)
	})

	t.Run("unknown company propagates not found", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1", output: sampleOutput()}
		svc := newService(t, cs, p, nil)

		err := svc.CompleteFromRun(context.Background(), uuid.New(), "run-1")
		assert.ErrorIs(t, err, store.ErrCompanyNotFound)
	})
}

func TestFailRun(t *testing.T) {
	t.Parallel()

	t.Run("records the reported reason", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1"}
		svc := newService(t, cs, p, nil)

		company, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)

		require.NoError(t, svc.FailRun(context.Background(), company.ID, "run-1", "crawl blocked"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CompanyStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "crawl blocked", *stored.ErrorMessage)
	})

	t.Run("empty reason falls back to generic message", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1"}
		svc := newService(t, cs, p, nil)

		company, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)

		require.NoError(t, svc.FailRun(context.Background(), company.ID, "run-1", ""))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "Task failed", *stored.ErrorMessage)
	})

	t.Run("repeated failure is a no-op", func(t *testing.T) {
		t.Parallel()

		cs := newFakeCompanyStore()
		p := &fakeProcessor{runID: "run-1"}
		svc := newService(t, cs, p, nil)

		company, err := svc.Submit(context.Background(), "https://example.com")
		require.NoError(t, err)

		require.NoError(t, svc.FailRun(context.Background(), company.ID, "run-1", "first"))
		require.NoError(t, svc.FailRun(context.Background(), company.ID, "run-1", "second"))

		stored, err := cs.GetByID(context.Background(), company.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "first", *stored.ErrorMessage)
	})
}
