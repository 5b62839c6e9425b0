package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quotaflow/quotaflow-backend/api/responses"
	"github.com/quotaflow/quotaflow-backend/api/validators"
	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/db/models"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"github.com/quotaflow/quotaflow-backend/pkg/pagination"
)

// MeteringService is the slice of the metering service the usage
// controllers depend on.
type MeteringService interface {
	RecordEvent(ctx context.Context, input metering.RecordEventInput) (*metering.Decision, error)
	Snapshot(ctx context.Context, subjectID string, tier enums.PlanTier) (*metering.UsageSnapshot, error)
	History(ctx context.Context, query metering.ListCountersQuery) ([]models.UsageCounter, *pagination.Cursor, error)
}

type recordEventRequest struct {
	SubjectID  string     `json:"subject_id" validate:"required"`
	Metric     string     `json:"metric" validate:"required"`
	Tier       string     `json:"tier" validate:"required"`
	Count      int64      `json:"count" validate:"omitempty,min=1"`
	DedupKey   string     `json:"dedup_key"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// RecordUsageEvent meters one usage event and returns the decision. Denied
// events still return 200; the decision body carries the verdict.
func RecordUsageEvent(svc MeteringService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "metering service unavailable"))
			return
		}

		var req recordEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metric, err := enums.ParseMetric(req.Metric)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown metric"))
			return
		}
		tier, err := enums.ParsePlanTier(req.Tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown plan tier"))
			return
		}

		input := metering.RecordEventInput{
			SubjectID: req.SubjectID,
			Metric:    metric,
			Tier:      tier,
			Count:     req.Count,
			DedupKey:  strings.TrimSpace(req.DedupKey),
		}
		if req.OccurredAt != nil {
			input.OccurredAt = *req.OccurredAt
		}

		decision, err := svc.RecordEvent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

// UsageSnapshot returns the subject's current usage across every metric.
func UsageSnapshot(svc MeteringService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "metering service unavailable"))
			return
		}

		subjectID := strings.TrimSpace(chi.URLParam(r, "subjectID"))
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required"))
			return
		}

		tier, err := validators.ParseQueryTier(r, "tier")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Snapshot(r.Context(), subjectID, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

type usageCounterItem struct {
	ID        string       `json:"id"`
	SubjectID string       `json:"subject_id"`
	Metric    enums.Metric `json:"metric"`
	PeriodKey string       `json:"period_key"`
	Count     int64        `json:"count"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type usageHistoryResponse struct {
	Items      []usageCounterItem `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// UsageHistory lists a subject's counters in reverse chronological order
// with cursor pagination.
func UsageHistory(svc MeteringService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "metering service unavailable"))
			return
		}

		subjectID := strings.TrimSpace(chi.URLParam(r, "subjectID"))
		if subjectID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metric, err := validators.ParseQueryMetric(r, "metric")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		counters, next, err := svc.History(r.Context(), metering.ListCountersQuery{
			SubjectID: subjectID,
			Metric:    metric,
			Limit:     limit,
			Cursor:    cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := usageHistoryResponse{Items: make([]usageCounterItem, 0, len(counters))}
		for _, counter := range counters {
			resp.Items = append(resp.Items, usageCounterItem{
				ID:        counter.ID.String(),
				SubjectID: counter.SubjectID,
				Metric:    counter.Metric,
				PeriodKey: counter.PeriodKey,
				Count:     counter.Count,
				UpdatedAt: counter.UpdatedAt,
			})
		}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}
