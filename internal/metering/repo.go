package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quotaflow/quotaflow-backend/pkg/db/models"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository handles usage counter persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Increment(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by int64) (int64, error)
	IncrementWithin(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by, limit int64) (int64, bool, error)
	Read(ctx context.Context, subjectID string, metric enums.Metric, periodKey string) (int64, error)
	ReadMany(ctx context.Context, subjectID string, periodKeys []string) ([]models.UsageCounter, error)
	ListBySubject(ctx context.Context, params ListCountersQuery) ([]models.UsageCounter, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage counter repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const incrementSQL = `
INSERT INTO usage_counters (id, subject_id, metric, period_key, count, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (subject_id, metric, period_key)
DO UPDATE SET count = usage_counters.count + excluded.count, updated_at = excluded.updated_at
RETURNING count`

const incrementWithinSQL = `
INSERT INTO usage_counters (id, subject_id, metric, period_key, count, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (subject_id, metric, period_key)
DO UPDATE SET count = usage_counters.count + excluded.count, updated_at = excluded.updated_at
WHERE usage_counters.count + excluded.count <= ?
RETURNING count`

// Increment adds by events to the counter and returns the new total. The
// upsert is a single atomic statement, so concurrent increments never lose
// updates.
func (r *repository) Increment(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by int64) (int64, error) {
	var count int64
	res := r.db.WithContext(ctx).Raw(
		incrementSQL,
		uuid.New(), subjectID, metric, periodKey, by, time.Now().UTC(),
	).Scan(&count)
	if res.Error != nil {
		return 0, res.Error
	}
	return count, nil
}

// IncrementWithin adds by events only if the resulting total stays within
// limit. The limit check runs inside the upsert, so exactly one of two
// racers contending for the last slot is admitted. Returns the counter
// value and whether the increment was applied.
func (r *repository) IncrementWithin(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by, limit int64) (int64, bool, error) {
	if by > limit {
		// a fresh insert would bypass the conflict clause
		current, err := r.Read(ctx, subjectID, metric, periodKey)
		if err != nil {
			return 0, false, err
		}
		return current, false, nil
	}

	var count int64
	res := r.db.WithContext(ctx).Raw(
		incrementWithinSQL,
		uuid.New(), subjectID, metric, periodKey, by, time.Now().UTC(), limit,
	).Scan(&count)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := r.Read(ctx, subjectID, metric, periodKey)
		if err != nil {
			return 0, false, err
		}
		return current, false, nil
	}
	return count, true, nil
}

// Read returns the current counter value, zero when no counter exists yet.
func (r *repository) Read(ctx context.Context, subjectID string, metric enums.Metric, periodKey string) (int64, error) {
	var counter models.UsageCounter
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND metric = ? AND period_key = ?", subjectID, metric, periodKey).
		First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return counter.Count, nil
}

// ReadMany returns all counters for a subject within the given period keys.
func (r *repository) ReadMany(ctx context.Context, subjectID string, periodKeys []string) ([]models.UsageCounter, error) {
	var counters []models.UsageCounter
	if err := r.db.WithContext(ctx).
		Where("subject_id = ? AND period_key IN (?)", subjectID, periodKeys).
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}

// ListCountersQuery configures paginated counter history queries.
type ListCountersQuery struct {
	SubjectID string
	Metric    *enums.Metric
	Limit     int
	Cursor    *pagination.Cursor
}

// ListBySubject returns counters for a subject in reverse chronological
// order with cursor pagination.
func (r *repository) ListBySubject(ctx context.Context, params ListCountersQuery) ([]models.UsageCounter, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.UsageCounter{}).Where("subject_id = ?", params.SubjectID)
	if params.Metric != nil {
		query = query.Where("metric = ?", *params.Metric)
	}
	if params.Cursor != nil {
		query = query.Where("(updated_at, id) < (?, ?)", params.Cursor.UpdatedAt, params.Cursor.ID)
	}

	var counters []models.UsageCounter
	if err := query.Order("updated_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&counters).Error; err != nil {
		return nil, nil, err
	}

	if len(counters) > limit {
		next := counters[limit]
		counters = counters[:limit]
		return counters, &pagination.Cursor{
			UpdatedAt: next.UpdatedAt,
			ID:        next.ID,
		}, nil
	}

	return counters, nil, nil
}
