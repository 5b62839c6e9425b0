package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	apperrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

type stubRecorder struct {
	inputs   []metering.RecordEventInput
	decision *metering.Decision
	err      error
}

func (s *stubRecorder) RecordEvent(ctx context.Context, input metering.RecordEventInput) (*metering.Decision, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	if s.decision != nil {
		return s.decision, nil
	}
	return &metering.Decision{Allowed: true}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "usage-consumer-test", Output: io.Discard})
}

func payload(t *testing.T, envelope Envelope) []byte {
	t.Helper()
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestConsumerMetersEvent(t *testing.T) {
	rec := &stubRecorder{}
	consumer, err := NewConsumer(rec, testLogger())
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	err = consumer.Process(context.Background(), payload(t, Envelope{
		EventID:   "evt-1",
		SubjectID: "acct-1",
		Metric:    enums.MetricDMSent,
		PlanTier:  enums.PlanTierFree,
		Count:     2,
	}))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(rec.inputs) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(rec.inputs))
	}
	input := rec.inputs[0]
	if input.DedupKey != "evt-1" {
		t.Fatalf("dedup key = %s, want event id", input.DedupKey)
	}
	if input.Count != 2 || input.SubjectID != "acct-1" {
		t.Fatalf("unexpected input %+v", input)
	}
}

func TestConsumerAcksMalformedPayload(t *testing.T) {
	rec := &stubRecorder{}
	consumer, _ := NewConsumer(rec, testLogger())

	if err := consumer.Process(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed payload must be acked, got %v", err)
	}
	if len(rec.inputs) != 0 {
		t.Fatalf("malformed payload must not reach the recorder")
	}
}

func TestConsumerAcksMissingEventID(t *testing.T) {
	rec := &stubRecorder{}
	consumer, _ := NewConsumer(rec, testLogger())

	err := consumer.Process(context.Background(), payload(t, Envelope{
		SubjectID: "acct-1",
		Metric:    enums.MetricDMSent,
		PlanTier:  enums.PlanTierFree,
	}))
	if err != nil {
		t.Fatalf("missing event id must be acked, got %v", err)
	}
	if len(rec.inputs) != 0 {
		t.Fatalf("event without id must not reach the recorder")
	}
}

func TestConsumerAcksValidationErrors(t *testing.T) {
	rec := &stubRecorder{err: apperrors.New(apperrors.CodeValidation, "unknown metric")}
	consumer, _ := NewConsumer(rec, testLogger())

	err := consumer.Process(context.Background(), payload(t, Envelope{
		EventID:   "evt-1",
		SubjectID: "acct-1",
		Metric:    "story_posted",
		PlanTier:  enums.PlanTierFree,
	}))
	if err != nil {
		t.Fatalf("invalid event must be acked, got %v", err)
	}
}

func TestConsumerNacksDependencyErrors(t *testing.T) {
	rec := &stubRecorder{err: apperrors.Wrap(apperrors.CodeDependency, fmt.Errorf("down"), "counter store unavailable")}
	consumer, _ := NewConsumer(rec, testLogger())

	err := consumer.Process(context.Background(), payload(t, Envelope{
		EventID:   "evt-1",
		SubjectID: "acct-1",
		Metric:    enums.MetricDMSent,
		PlanTier:  enums.PlanTierFree,
	}))
	if err == nil {
		t.Fatalf("store outage must surface for redelivery")
	}
}

func TestConsumerAcksDenial(t *testing.T) {
	rec := &stubRecorder{decision: &metering.Decision{Allowed: false}}
	consumer, _ := NewConsumer(rec, testLogger())

	err := consumer.Process(context.Background(), payload(t, Envelope{
		EventID:   "evt-1",
		SubjectID: "acct-1",
		Metric:    enums.MetricDMSent,
		PlanTier:  enums.PlanTierFree,
	}))
	if err != nil {
		t.Fatalf("denial is a final decision and must be acked, got %v", err)
	}
}
