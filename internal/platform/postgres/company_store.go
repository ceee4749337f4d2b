package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/platform/logger"
	"github.com/prospecthq/prospect-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// companyColumns is the column list shared by every company SELECT.
const companyColumns = `id, url, run_id, status, result, fit_score, pitch, employee_count, error, created_at, updated_at`

// PostgresCompanyStore implements the store.CompanyStore interface
// using a PostgreSQL database as the storage backend. It is the single
// choke point for company state transitions.
type PostgresCompanyStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCompanyStore creates a new PostgreSQL implementation of the
// CompanyStore interface. It accepts a database connection or transaction
// managed by the caller. If logger is nil, a default logger will be used.
func NewPostgresCompanyStore(db store.DBTX, logger *slog.Logger) *PostgresCompanyStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCompanyStore{
		db:     db,
		logger: logger.With(slog.String("component", "company_store")),
	}
}

// Ensure PostgresCompanyStore implements store.CompanyStore interface
var _ store.CompanyStore = (*PostgresCompanyStore)(nil)

// WithTx implements store.CompanyStore.WithTx
func (s *PostgresCompanyStore) WithTx(tx *sql.Tx) store.CompanyStore {
	return &PostgresCompanyStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.CompanyStore.Create
// Returns store.ErrURLExists when the URL uniqueness constraint is violated,
// derived from the PostgreSQL error code rather than message text.
func (s *PostgresCompanyStore) Create(ctx context.Context, company *domain.Company) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := company.Validate(); err != nil {
		log.Warn("company validation failed during create",
			slog.String("error", err.Error()),
			slog.String("company_id", company.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO companies (id, url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		company.ID,
		company.URL,
		company.Status,
		company.CreatedAt,
		company.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Debug("duplicate URL during company creation",
				slog.String("url", company.URL))
			return store.ErrURLExists
		}

		log.Error("failed to create company",
			slog.String("error", err.Error()),
			slog.String("company_id", company.ID.String()))
		return err
	}

	log.Info("company created",
		slog.String("company_id", company.ID.String()),
		slog.String("url", company.URL))
	return nil
}

// GetByID implements store.CompanyStore.GetByID
func (s *PostgresCompanyStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

	company, err := scanCompany(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("company not found", slog.String("company_id", id.String()))
			return nil, store.ErrCompanyNotFound
		}
		log.Error("failed to get company by ID",
			slog.String("error", err.Error()),
			slog.String("company_id", id.String()))
		return nil, err
	}

	return company, nil
}

// List implements store.CompanyStore.List
func (s *PostgresCompanyStore) List(ctx context.Context) ([]*domain.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY created_at DESC`
	return s.queryCompanies(ctx, query)
}

// ListByStatus implements store.CompanyStore.ListByStatus
func (s *PostgresCompanyStore) ListByStatus(
	ctx context.Context,
	status domain.CompanyStatus,
) ([]*domain.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE status = $1 ORDER BY created_at DESC`
	return s.queryCompanies(ctx, query, status)
}

// ListStalePending implements store.CompanyStore.ListStalePending
func (s *PostgresCompanyStore) ListStalePending(
	ctx context.Context,
	cutoff time.Time,
) ([]*domain.Company, error) {
	query := `
		SELECT ` + companyColumns + `
		FROM companies
		WHERE status = $1 AND run_id IS NULL AND created_at < $2
		ORDER BY created_at DESC
	`
	return s.queryCompanies(ctx, query, domain.CompanyStatusPending, cutoff)
}

// Delete implements store.CompanyStore.Delete
func (s *PostgresCompanyStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete company",
			slog.String("error", err.Error()),
			slog.String("company_id", id.String()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrCompanyNotFound
	}

	log.Info("company deleted", slog.String("company_id", id.String()))
	return nil
}

// MarkProcessing implements store.CompanyStore.MarkProcessing
// The run ID and the pending->processing move are applied in a single update
// so a company never carries a run ID while pending.
func (s *PostgresCompanyStore) MarkProcessing(ctx context.Context, id uuid.UUID, runID string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE companies
		SET run_id = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		runID,
		domain.CompanyStatusProcessing,
		time.Now().UTC(),
		id,
		domain.CompanyStatusPending,
	)
	if err != nil {
		log.Error("failed to mark company processing",
			slog.String("error", err.Error()),
			slog.String("company_id", id.String()),
			slog.String("run_id", runID))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Either the row is gone or a webhook already finalized it; only the
		// former is an error.
		return s.noopIfExists(ctx, id)
	}

	log.Info("company dispatched",
		slog.String("company_id", id.String()),
		slog.String("run_id", runID))
	return nil
}

// MarkCompleted implements store.CompanyStore.MarkCompleted
// The conditional WHERE clause makes the terminal transition idempotent:
// a second observer of the same completion updates zero rows and returns nil.
func (s *PostgresCompanyStore) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	runID string,
	result json.RawMessage,
	analysis *domain.FitAnalysis,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var fitScore, pitch, employeeCount *string
	if analysis != nil {
		fitScore = &analysis.FitScore
		pitch = &analysis.Pitch
		employeeCount = analysis.EmployeeCount
	}

	query := `
		UPDATE companies
		SET status = $1,
		    run_id = COALESCE(run_id, $2),
		    result = $3,
		    fit_score = $4,
		    pitch = $5,
		    employee_count = $6,
		    error = NULL,
		    updated_at = $7
		WHERE id = $8 AND status IN ($9, $10)
	`
	res, err := s.db.ExecContext(
		ctx,
		query,
		domain.CompanyStatusCompleted,
		runID,
		[]byte(result),
		fitScore,
		pitch,
		employeeCount,
		time.Now().UTC(),
		id,
		domain.CompanyStatusPending,
		domain.CompanyStatusProcessing,
	)
	if err != nil {
		log.Error("failed to mark company completed",
			slog.String("error", err.Error()),
			slog.String("company_id", id.String()))
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return s.noopIfExists(ctx, id)
	}

	log.Info("company completed",
		slog.String("company_id", id.String()),
		slog.String("run_id", runID),
		slog.Bool("enriched", analysis != nil))
	return nil
}

// MarkFailed implements store.CompanyStore.MarkFailed
func (s *PostgresCompanyStore) MarkFailed(ctx context.Context, id uuid.UUID, runID string, reason string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE companies
		SET status = $1,
		    run_id = COALESCE(run_id, $2),
		    error = $3,
		    result = NULL,
		    updated_at = $4
		WHERE id = $5 AND status IN ($6, $7)
	`
	res, err := s.db.ExecContext(
		ctx,
		query,
		domain.CompanyStatusFailed,
		runID,
		reason,
		time.Now().UTC(),
		id,
		domain.CompanyStatusPending,
		domain.CompanyStatusProcessing,
	)
	if err != nil {
		log.Error("failed to mark company failed",
			slog.String("error", err.Error()),
			slog.String("company_id", id.String()))
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return s.noopIfExists(ctx, id)
	}

	log.Info("company failed",
		slog.String("company_id", id.String()),
		slog.String("run_id", runID),
		slog.String("reason", reason))
	return nil
}

// noopIfExists distinguishes "row already terminal" (nil) from "row missing"
// (ErrCompanyNotFound) after a conditional update touched zero rows.
func (s *PostgresCompanyStore) noopIfExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrCompanyNotFound
	}
	return nil
}

// queryCompanies runs a multi-row company query and scans the results.
func (s *PostgresCompanyStore) queryCompanies(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.Company, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query companies", slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var companies []*domain.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			log.Error("failed to scan company row", slog.String("error", err.Error()))
			return nil, err
		}
		companies = append(companies, company)
	}

	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}

	if companies == nil {
		companies = []*domain.Company{}
	}
	return companies, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCompany maps one result row onto a domain.Company, converting the
// nullable columns to pointers.
func scanCompany(row rowScanner) (*domain.Company, error) {
	var (
		company       domain.Company
		status        string
		runID         sql.NullString
		result        []byte
		fitScore      sql.NullString
		pitch         sql.NullString
		employeeCount sql.NullString
		errorMessage  sql.NullString
	)

	err := row.Scan(
		&company.ID,
		&company.URL,
		&runID,
		&status,
		&result,
		&fitScore,
		&pitch,
		&employeeCount,
		&errorMessage,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	company.Status = domain.CompanyStatus(status)
	if runID.Valid {
		company.RunID = &runID.String
	}
	if len(result) > 0 {
		company.Result = json.RawMessage(result)
	}
	if fitScore.Valid {
		company.FitScore = &fitScore.String
	}
	if pitch.Valid {
		company.Pitch = &pitch.String
	}
	if employeeCount.Valid {
		company.EmployeeCount = &employeeCount.String
	}
	if errorMessage.Valid {
		company.ErrorMessage = &errorMessage.String
	}

	return &company, nil
}
