package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultDrainBatch = 100
	maxDrainBatches   = 50
)

type journalDrainer interface {
	JournalPush(ctx context.Context, name string, payload string, ttl time.Duration) error
	JournalDrain(ctx context.Context, name string, max int) ([]string, error)
	JournalLen(ctx context.Context, name string) (int64, error)
}

type counterIncrementer interface {
	Increment(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by int64) (int64, error)
}

// ReconcileJobParams configure the fail-open reconciliation job.
type ReconcileJobParams struct {
	Logger     *logger.Logger
	Journal    journalDrainer
	Repo       counterIncrementer
	BatchSize  int
	JournalTTL time.Duration
}

// NewReconcileJob builds the job that replays journaled fail-open usage
// into the counter store once it is reachable again.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Journal == nil {
		return nil, fmt.Errorf("journal required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("counter repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDrainBatch
	}
	ttl := params.JournalTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &reconcileJob{
		logg:    params.Logger,
		journal: params.Journal,
		repo:    params.Repo,
		batch:   batch,
		ttl:     ttl,
	}, nil
}

type reconcileJob struct {
	logg    *logger.Logger
	journal journalDrainer
	repo    counterIncrementer
	batch   int
	ttl     time.Duration
}

func (j *reconcileJob) Name() string { return "usage-reconcile" }

// Run drains journaled usage and charges it to the counter store. Entries
// that fail to apply are pushed back onto the journal so the next cycle
// retries them; their errors are aggregated into the job result.
func (j *reconcileJob) Run(ctx context.Context) error {
	pending, err := j.journal.JournalLen(ctx, metering.ReconcileJournal)
	if err != nil {
		return fmt.Errorf("journal length: %w", err)
	}
	if pending == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithField(ctx, "pending", pending), "reconciling fail-open usage")

	var applied int
	var errs error
	remaining := pending
	for i := 0; i < maxDrainBatches && remaining > 0; i++ {
		entries, err := j.journal.JournalDrain(ctx, metering.ReconcileJournal, j.batch)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("journal drain: %w", err))
			break
		}
		if len(entries) == 0 {
			break
		}
		remaining -= int64(len(entries))

		for _, raw := range entries {
			entry, err := metering.DecodeJournalEntry(raw)
			if err != nil {
				// undecodable entries are dropped, retrying cannot fix them
				j.logg.Error(ctx, "dropping malformed journal entry", err)
				continue
			}
			if _, err := j.repo.Increment(ctx, entry.SubjectID, entry.Metric, entry.PeriodKey, entry.Count); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("apply %s/%s: %w", entry.SubjectID, entry.Metric, err))
				if pushErr := j.journal.JournalPush(ctx, metering.ReconcileJournal, raw, j.ttl); pushErr != nil {
					errs = multierr.Append(errs, fmt.Errorf("requeue entry: %w", pushErr))
				}
				continue
			}
			applied++
		}
	}

	doneCtx := j.logg.WithFields(ctx, map[string]any{
		"applied": applied,
		"since":   time.Now().UTC(),
	})
	if errs != nil {
		j.logg.Error(doneCtx, "reconciliation finished with failures", errs)
		return errs
	}
	j.logg.Info(doneCtx, "reconciliation complete")
	return nil
}
