package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/prospecthq/prospect-api/internal/domain"
)

// CompanyStore defines the interface for company research job persistence.
//
// All state transitions flow through the Mark* methods, which enforce the
// lifecycle invariants: run IDs are recorded together with the move out of
// pending, terminal transitions are conditional single-row updates so a
// repeated terminal write is a silent no-op, and field sets change
// all-or-nothing per transition.
type CompanyStore interface {
	// Create saves a new company to the store.
	// Returns ErrURLExists if a company with the same URL already exists.
	Create(ctx context.Context, company *domain.Company) error

	// GetByID retrieves a company by its unique ID.
	// Returns ErrCompanyNotFound if the company does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Company, error)

	// List retrieves all companies ordered by creation time descending.
	List(ctx context.Context) ([]*domain.Company, error)

	// ListByStatus retrieves all companies with the given status,
	// ordered by creation time descending.
	ListByStatus(ctx context.Context, status domain.CompanyStatus) ([]*domain.Company, error)

	// ListStalePending retrieves pending companies without a run ID created
	// before the cutoff. These are orphans from failed dispatch attempts.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*domain.Company, error)

	// Delete removes a company.
	// Returns ErrCompanyNotFound if the company does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkProcessing records the processor's run ID and moves the company
	// from pending to processing in a single update.
	// Returns ErrCompanyNotFound if no pending row matches.
	MarkProcessing(ctx context.Context, id uuid.UUID, runID string) error

	// MarkCompleted finalizes the company with the fetched result document
	// and optional enrichment. Applying it to an already terminal company is
	// a no-op, not an error, so the webhook and reconciler paths can race
	// harmlessly. The run ID is recorded if the row does not carry one yet
	// (a webhook can overtake the post-dispatch update).
	// Returns ErrCompanyNotFound if the company does not exist.
	MarkCompleted(ctx context.Context, id uuid.UUID, runID string, result json.RawMessage, analysis *domain.FitAnalysis) error

	// MarkFailed finalizes the company with a failure reason, with the same
	// idempotence and run ID semantics as MarkCompleted.
	MarkFailed(ctx context.Context, id uuid.UUID, runID string, reason string) error

	// WithTx returns a CompanyStore bound to the provided transaction.
	WithTx(tx *sql.Tx) CompanyStore
}
