package metering

import (
	"context"
	"strings"
	"time"

	"github.com/quotaflow/quotaflow-backend/pkg/db/models"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	apperrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/pagination"
)

// MetricUsage is one metric's position inside a usage snapshot.
type MetricUsage struct {
	Metric    enums.Metric       `json:"metric"`
	Window    enums.MetricWindow `json:"window"`
	PeriodKey string             `json:"period_key"`
	Used      int64              `json:"used"`
	Limit     int64              `json:"limit"`
	Remaining int64              `json:"remaining"`
	Unlimited bool               `json:"unlimited"`
	ResetsAt  *time.Time         `json:"resets_at,omitempty"`
}

// UsageSnapshot is the current usage across every metric for a subject.
type UsageSnapshot struct {
	SubjectID string         `json:"subject_id"`
	Tier      enums.PlanTier `json:"tier"`
	Metrics   []MetricUsage  `json:"metrics"`
	TakenAt   time.Time      `json:"taken_at"`
}

// Snapshot reports the subject's current usage and remaining allowance for
// every metric in one read.
func (s *Service) Snapshot(ctx context.Context, subjectID string, tier enums.PlanTier) (*UsageSnapshot, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "subject id is required")
	}
	if !tier.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "unknown plan tier "+string(tier))
	}

	now := s.clock()
	dailyKey, err := ResolvePeriod(enums.MetricWindowDaily, now, s.tz)
	if err != nil {
		return nil, err
	}

	counters, err := s.repo.ReadMany(ctx, subjectID, []string{dailyKey, LifetimePeriodKey})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading usage counters")
	}

	used := map[enums.Metric]map[string]int64{}
	for _, counter := range counters {
		if used[counter.Metric] == nil {
			used[counter.Metric] = map[string]int64{}
		}
		used[counter.Metric][counter.PeriodKey] = counter.Count
	}

	snapshot := &UsageSnapshot{
		SubjectID: subjectID,
		Tier:      tier,
		TakenAt:   now,
	}
	for _, metric := range enums.Metrics() {
		cfg, err := s.registry.ConfigFor(metric)
		if err != nil {
			return nil, err
		}
		limit, err := s.registry.LimitFor(tier, metric)
		if err != nil {
			return nil, err
		}
		periodKey, err := ResolvePeriod(cfg.Window, now, s.tz)
		if err != nil {
			return nil, err
		}

		usage := MetricUsage{
			Metric:    metric,
			Window:    cfg.Window,
			PeriodKey: periodKey,
			Used:      used[metric][periodKey],
			Limit:     limit,
			Unlimited: limit == Unlimited,
		}
		usage.Remaining = remainingOf(usage.Used, limit)
		if reset, ok := NextReset(cfg.Window, now, s.tz); ok {
			usage.ResetsAt = &reset
		}
		snapshot.Metrics = append(snapshot.Metrics, usage)
	}
	return snapshot, nil
}

// History lists a subject's counters in reverse chronological order.
func (s *Service) History(ctx context.Context, query ListCountersQuery) ([]models.UsageCounter, *pagination.Cursor, error) {
	if strings.TrimSpace(query.SubjectID) == "" {
		return nil, nil, apperrors.New(apperrors.CodeValidation, "subject id is required")
	}
	counters, cursor, err := s.repo.ListBySubject(ctx, query)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing usage counters")
	}
	return counters, cursor, nil
}
