package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
)

// UsageCounter is the durable aggregate for one (subject, metric, period)
// tuple. A row is created lazily on the first event of a period and is never
// deleted; the count only grows within its period.
type UsageCounter struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey"`
	SubjectID string       `gorm:"column:subject_id;not null;uniqueIndex:idx_usage_counters_key,priority:1"`
	Metric    enums.Metric `gorm:"column:metric;not null;uniqueIndex:idx_usage_counters_key,priority:2"`
	PeriodKey string       `gorm:"column:period_key;not null;uniqueIndex:idx_usage_counters_key,priority:3"`
	Count     int64        `gorm:"column:count;not null;default:0"`
	UpdatedAt time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name used by raw upsert statements.
func (UsageCounter) TableName() string {
	return "usage_counters"
}
