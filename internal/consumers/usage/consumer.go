package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	apperrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

// Envelope is the canonical usage event message published by producing
// services.
type Envelope struct {
	EventID    string         `json:"event_id"`
	SubjectID  string         `json:"subject_id"`
	Metric     enums.Metric   `json:"metric"`
	PlanTier   enums.PlanTier `json:"plan_tier"`
	Count      int64          `json:"count"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type recorder interface {
	RecordEvent(ctx context.Context, input metering.RecordEventInput) (*metering.Decision, error)
}

// Consumer meters usage events delivered over Pub/Sub. The event id doubles
// as the dedup key, so at-least-once delivery cannot double charge.
type Consumer struct {
	recorder recorder
	logg     *logger.Logger
}

// NewConsumer builds a usage event consumer.
func NewConsumer(rec recorder, logg *logger.Logger) (*Consumer, error) {
	if rec == nil {
		return nil, fmt.Errorf("recorder required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{recorder: rec, logg: logg}, nil
}

// Process meters one delivered message. A returned error means the message
// should be redelivered; denials and bad payloads are final and must be
// acked.
func (c *Consumer) Process(ctx context.Context, data []byte) error {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		// malformed payloads never become valid on redelivery
		c.logg.Error(ctx, "dropping malformed usage event", err)
		return nil
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id": envelope.EventID,
		"metric":   envelope.Metric,
	})

	if strings.TrimSpace(envelope.EventID) == "" {
		c.logg.Error(logCtx, "dropping usage event without event id", nil)
		return nil
	}

	decision, err := c.recorder.RecordEvent(logCtx, metering.RecordEventInput{
		SubjectID:  envelope.SubjectID,
		Metric:     envelope.Metric,
		Tier:       envelope.PlanTier,
		Count:      envelope.Count,
		DedupKey:   envelope.EventID,
		OccurredAt: envelope.OccurredAt,
	})
	if err != nil {
		if appErr := apperrors.As(err); appErr != nil && appErr.Code() == apperrors.CodeValidation {
			// invalid events are dropped, redelivery cannot fix them
			c.logg.Error(logCtx, "dropping invalid usage event", err)
			return nil
		}
		c.logg.Error(logCtx, "metering usage event failed", err)
		return err
	}

	if decision.Deduplicated {
		c.logg.Info(logCtx, "usage event already metered")
		return nil
	}
	if !decision.Allowed {
		c.logg.Info(logCtx, "usage event denied by plan limit")
	}
	return nil
}
