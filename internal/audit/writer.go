package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	pkgbigquery "github.com/quotaflow/quotaflow-backend/pkg/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// DecisionRow is the BigQuery projection of one entitlement decision.
type DecisionRow struct {
	SubjectID   string    `bigquery:"subject_id"`
	Metric      string    `bigquery:"metric"`
	PeriodKey   string    `bigquery:"period_key"`
	Allowed     bool      `bigquery:"allowed"`
	LimitValue  int64     `bigquery:"limit_value"`
	Used        int64     `bigquery:"used"`
	Remaining   int64     `bigquery:"remaining"`
	Overshoot   int64     `bigquery:"overshoot"`
	FailOpen    bool      `bigquery:"fail_open"`
	OverageCost string    `bigquery:"overage_cost"`
	DecidedAt   time.Time `bigquery:"decided_at"`
}

// Config controls the audit writer behavior.
type Config struct {
	DecisionsTable string
	BatchSize      int
	RetryPolicy    RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer streams entitlement decisions into BigQuery with retries and
// optional batching. It satisfies the metering audit sink.
type Writer struct {
	client         tableInserter
	decisionsTable string
	batchSize      int
	retry          RetryPolicy

	mu     sync.Mutex
	buffer []DecisionRow
}

// New creates a Writer backed by a shared BigQuery client.
func New(client *pkgbigquery.Client, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return newWithInserter(client, cfg)
}

func newWithInserter(client tableInserter, cfg Config) (*Writer, error) {
	table := strings.TrimSpace(cfg.DecisionsTable)
	if table == "" {
		return nil, errors.New("decisions table is required")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff <= 0 {
		retry.MaximumBackoff = defaultMaximumBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = retry.InitialBackoff
	}

	return &Writer{
		client:         client,
		decisionsTable: table,
		batchSize:      batchSize,
		retry:          retry,
	}, nil
}

// WriteDecision buffers one decision row (flushes when batch size reached).
// Safe for concurrent use; the writer is shared across request handlers and
// message deliveries.
func (w *Writer) WriteDecision(ctx context.Context, decision metering.Decision) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, rowFromDecision(decision))
	if len(w.buffer) >= w.batchSize {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered rows immediately.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.buffer))
	for i := range w.buffer {
		rows[i] = &w.buffer[i]
	}

	if err := w.insertWithRetry(ctx, rows); err != nil {
		return err
	}
	w.buffer = w.buffer[:0]
	return nil
}

func rowFromDecision(decision metering.Decision) DecisionRow {
	row := DecisionRow{
		SubjectID:  decision.SubjectID,
		Metric:     decision.Metric.String(),
		PeriodKey:  decision.PeriodKey,
		Allowed:    decision.Allowed,
		LimitValue: decision.Limit,
		Used:       decision.Used,
		Remaining:  decision.Remaining,
		Overshoot:  decision.Overshoot,
		FailOpen:   decision.FailOpen,
		DecidedAt:  decision.DecidedAt,
	}
	if decision.OverageCost != nil {
		row.OverageCost = decision.OverageCost.String()
	}
	return row
}

func (w *Writer) insertWithRetry(ctx context.Context, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := w.retry.InitialBackoff

	for {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		err := w.client.InsertRows(ctx, w.decisionsTable, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", w.decisionsTable, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, w.retry.MaximumBackoff)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
