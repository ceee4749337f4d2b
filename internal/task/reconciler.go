// Package task runs the background reconciliation sweep that converges
// companies whose completion notification never arrived.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/prospecthq/prospect-api/internal/config"
	"github.com/prospecthq/prospect-api/internal/domain"
	"github.com/prospecthq/prospect-api/internal/platform/parallel"
	"github.com/prospecthq/prospect-api/internal/store"
)

// Defaults applied when the corresponding config value is zero.
const (
	defaultSweepInterval = 90 * time.Second
	defaultMaxConcurrent = 4
	defaultPendingMaxAge = 60 * time.Minute
)

// StatusClient queries the processor for a run's current state.
type StatusClient interface {
	GetRunStatus(ctx context.Context, runID string) (*parallel.RunStatus, error)
}

// Finalizer applies terminal transitions. The reconciler funnels its findings
// through the same finalization path the webhook handler uses, so the two
// paths cannot diverge.
type Finalizer interface {
	CompleteFromRun(ctx context.Context, companyID uuid.UUID, runID string) error
	FailRun(ctx context.Context, companyID uuid.UUID, runID string, reason string) error
}

// Reconciler periodically sweeps companies stuck in processing, asks the
// processor for their actual run state, and finalizes the ones that have
// reached a terminal state. It also removes stale pending rows left behind by
// dispatch attempts that failed after the insert.
//
// The sweep is the fallback delivery channel: with webhooks disabled or lost,
// every job still converges within one sweep interval of its run finishing.
type Reconciler struct {
	companyStore  store.CompanyStore
	processor     StatusClient
	finalizer     Finalizer
	logger        *slog.Logger
	interval      time.Duration
	maxConcurrent int
	pendingMaxAge time.Duration

	cron *cron.Cron
	mu   sync.Mutex
}

// NewReconciler creates a Reconciler from configuration. Zero config values
// fall back to defaults.
func NewReconciler(
	cfg config.ReconcilerConfig,
	companyStore store.CompanyStore,
	processor StatusClient,
	finalizer Finalizer,
	logger *slog.Logger,
) (*Reconciler, error) {
	if companyStore == nil {
		return nil, fmt.Errorf("company store cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("status client cannot be nil")
	}
	if finalizer == nil {
		return nil, fmt.Errorf("finalizer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	interval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	pendingMaxAge := time.Duration(cfg.PendingMaxAgeMinutes) * time.Minute
	if pendingMaxAge <= 0 {
		pendingMaxAge = defaultPendingMaxAge
	}

	return &Reconciler{
		companyStore:  companyStore,
		processor:     processor,
		finalizer:     finalizer,
		logger:        logger.With(slog.String("component", "reconciler")),
		interval:      interval,
		maxConcurrent: maxConcurrent,
		pendingMaxAge: pendingMaxAge,
	}, nil
}

// Start schedules the sweep at the configured cadence. Sweeps that overrun
// the interval are skipped rather than stacked.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return fmt.Errorf("reconciler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	r.cron = c

	r.logger.Info("reconciler started",
		slog.Duration("interval", r.interval),
		slog.Int("max_concurrent", r.maxConcurrent))
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("reconciler stopped")
}

// Sweep runs one reconciliation pass: query every processing company's run
// state with bounded concurrency, finalize the terminal ones, then remove
// stale pending orphans. Per-company errors are logged and isolated so one
// bad job cannot block the rest of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) {
	companies, err := r.companyStore.ListByStatus(ctx, domain.CompanyStatusProcessing)
	if err != nil {
		r.logger.Error("sweep failed to list processing companies",
			slog.String("error", err.Error()))
		return
	}

	if len(companies) > 0 {
		r.logger.Debug("sweeping processing companies", slog.Int("count", len(companies)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.maxConcurrent)
		for _, company := range companies {
			g.Go(func() error {
				if err := r.reconcileOne(gctx, company); err != nil {
					r.logger.Warn("failed to reconcile company",
						slog.String("company_id", company.ID.String()),
						slog.String("error", err.Error()))
				}
				return nil
			})
		}
		// Workers never return errors, so this only waits.
		_ = g.Wait()
	}

	r.cleanupStalePending(ctx)
}

// reconcileOne queries one company's run state and finalizes it if the run
// has ended. Runs still in flight are left untouched.
func (r *Reconciler) reconcileOne(ctx context.Context, company *domain.Company) error {
	if company.RunID == nil || *company.RunID == "" {
		return fmt.Errorf("processing company %s has no run ID", company.ID)
	}
	runID := *company.RunID

	status, err := r.processor.GetRunStatus(ctx, runID)
	if err != nil {
		return fmt.Errorf("query run status: %w", err)
	}

	switch status.Status {
	case parallel.RunStatusCompleted:
		r.logger.Info("sweep found completed run",
			slog.String("company_id", company.ID.String()),
			slog.String("run_id", runID))
		return r.finalizer.CompleteFromRun(ctx, company.ID, runID)
	case parallel.RunStatusFailed:
		r.logger.Info("sweep found failed run",
			slog.String("company_id", company.ID.String()),
			slog.String("run_id", runID))
		return r.finalizer.FailRun(ctx, company.ID, runID, status.ErrorMessage())
	default:
		return nil
	}
}

// cleanupStalePending removes pending rows without a run ID older than the
// configured age. These are orphans from dispatch attempts that failed after
// the insert but before the compensating delete could run.
func (r *Reconciler) cleanupStalePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.pendingMaxAge)

	stale, err := r.companyStore.ListStalePending(ctx, cutoff)
	if err != nil {
		r.logger.Error("sweep failed to list stale pending companies",
			slog.String("error", err.Error()))
		return
	}

	for _, company := range stale {
		if err := r.companyStore.Delete(ctx, company.ID); err != nil {
			r.logger.Warn("failed to remove stale pending company",
				slog.String("company_id", company.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		r.logger.Info("removed stale pending company",
			slog.String("company_id", company.ID.String()),
			slog.String("url", company.URL),
			slog.Time("created_at", company.CreatedAt))
	}
}
