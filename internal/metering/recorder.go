package metering

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	apperrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
	"github.com/quotaflow/quotaflow-backend/pkg/metrics"
	"github.com/shopspring/decimal"
)

// DecisionCache stores recorded decisions under dedup keys so retried
// deliveries replay the original outcome instead of double counting.
type DecisionCache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DedupKey(subjectID, token string) string
}

// JournalWriter appends fail-open admissions for later reconciliation.
type JournalWriter interface {
	JournalPush(ctx context.Context, name string, payload string, ttl time.Duration) error
}

// AuditSink receives every decision for offline analysis.
type AuditSink interface {
	WriteDecision(ctx context.Context, decision Decision) error
}

// Decision is the outcome of recording one usage event.
type Decision struct {
	SubjectID    string           `json:"subject_id"`
	Metric       enums.Metric     `json:"metric"`
	PeriodKey    string           `json:"period_key"`
	Allowed      bool             `json:"allowed"`
	Limit        int64            `json:"limit"`
	Used         int64            `json:"used"`
	Remaining    int64            `json:"remaining"`
	Overshoot    int64            `json:"overshoot,omitempty"`
	FailOpen     bool             `json:"fail_open,omitempty"`
	Deduplicated bool             `json:"deduplicated,omitempty"`
	OverageCost  *decimal.Decimal `json:"overage_cost,omitempty"`
	DecidedAt    time.Time        `json:"decided_at"`
}

// RecordEventInput describes one usage event to meter.
type RecordEventInput struct {
	SubjectID  string
	Metric     enums.Metric
	Tier       enums.PlanTier
	Count      int64
	DedupKey   string
	OccurredAt time.Time
}

// ServiceParams groups dependencies for the metering service.
type ServiceParams struct {
	Repo     Repository
	Registry *Registry
	Logg     *logger.Logger
	Cache    DecisionCache
	Journal  JournalWriter
	Audit    AuditSink
	Metrics  *metrics.DecisionMetrics

	Timezone   *time.Location
	DedupTTL   time.Duration
	JournalTTL time.Duration
	Clock      func() time.Time
}

// Service records usage events and answers entitlement questions.
type Service struct {
	repo     Repository
	registry *Registry
	logg     *logger.Logger
	cache    DecisionCache
	journal  JournalWriter
	audit    AuditSink
	metrics  *metrics.DecisionMetrics

	tz         *time.Location
	dedupTTL   time.Duration
	journalTTL time.Duration
	clock      func() time.Time
}

// NewService builds a metering service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if params.Logg == nil {
		return nil, errors.New("logger is required")
	}
	tz := params.Timezone
	if tz == nil {
		tz = time.UTC
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	dedupTTL := params.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	journalTTL := params.JournalTTL
	if journalTTL <= 0 {
		journalTTL = 72 * time.Hour
	}
	return &Service{
		repo:       params.Repo,
		registry:   params.Registry,
		logg:       params.Logg,
		cache:      params.Cache,
		journal:    params.Journal,
		audit:      params.Audit,
		metrics:    params.Metrics,
		tz:         tz,
		dedupTTL:   dedupTTL,
		journalTTL: journalTTL,
		clock:      clock,
	}, nil
}

// Registry exposes the plan registry for read-only listings.
func (s *Service) Registry() *Registry {
	return s.registry
}

// RecordEvent meters one usage event and returns the decision. Denials are
// not errors: the event simply was not admitted and nothing was charged.
// An error is returned when the input is invalid or when a fail-closed
// metric cannot reach the counter store.
func (s *Service) RecordEvent(ctx context.Context, input RecordEventInput) (*Decision, error) {
	start := s.clock()
	defer func() {
		s.metrics.ObserveRecordDuration(input.Metric.String(), s.clock().Sub(start))
	}()

	if strings.TrimSpace(input.SubjectID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "subject id is required")
	}
	if !input.Metric.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "unknown metric "+string(input.Metric))
	}
	if !input.Tier.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, "unknown plan tier "+string(input.Tier))
	}
	count := input.Count
	if count == 0 {
		count = 1
	}
	if count < 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "count must be positive")
	}

	cfg, err := s.registry.ConfigFor(input.Metric)
	if err != nil {
		return nil, err
	}
	limit, err := s.registry.LimitFor(input.Tier, input.Metric)
	if err != nil {
		return nil, err
	}

	at := input.OccurredAt
	if at.IsZero() {
		at = start
	}
	periodKey, err := ResolvePeriod(cfg.Window, at, s.tz)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithSubjectID(ctx, input.SubjectID)
	ctx = s.logg.WithMetric(ctx, input.Metric.String())

	if cached := s.replayDedup(ctx, input); cached != nil {
		return cached, nil
	}

	decision, err := s.decide(ctx, cfg, limit, input.SubjectID, input.Metric, periodKey, count)
	if err != nil {
		return nil, err
	}

	if final := s.storeDedup(ctx, input, decision); final != nil {
		decision = final
	}

	s.observe(ctx, decision)
	return decision, nil
}

func (s *Service) decide(ctx context.Context, cfg MetricConfig, limit int64, subjectID string, metric enums.Metric, periodKey string, count int64) (*Decision, error) {
	decision := &Decision{
		SubjectID: subjectID,
		Metric:    metric,
		PeriodKey: periodKey,
		Limit:     limit,
		DecidedAt: s.clock(),
	}

	switch {
	case limit == Unlimited:
		used, err := s.repo.Increment(ctx, subjectID, metric, periodKey, count)
		if err != nil {
			return s.handleStoreFailure(ctx, cfg, decision, count, err)
		}
		decision.Allowed = true
		decision.Used = used
		decision.Remaining = Unlimited
		return decision, nil

	case limit == 0:
		// nothing to admit and nothing to charge, skip the store round-trip
		decision.Allowed = false
		decision.Remaining = 0
		return decision, nil

	case cfg.Mode == enums.MeterModeStrict:
		used, admitted, err := s.repo.IncrementWithin(ctx, subjectID, metric, periodKey, count, limit)
		if err != nil {
			return s.handleStoreFailure(ctx, cfg, decision, count, err)
		}
		decision.Allowed = admitted
		decision.Used = used
		decision.Remaining = remainingOf(used, limit)
		if !admitted && used > limit {
			decision.Overshoot = used - limit
		}
		return decision, nil

	default:
		current, err := s.repo.Read(ctx, subjectID, metric, periodKey)
		if err != nil {
			return s.handleStoreFailure(ctx, cfg, decision, count, err)
		}
		eval := Evaluate(current, limit, count)
		if !eval.Allowed {
			decision.Allowed = false
			decision.Used = current
			decision.Remaining = eval.Remaining
			decision.Overshoot = eval.Overshoot
			return decision, nil
		}

		used, err := s.repo.Increment(ctx, subjectID, metric, periodKey, count)
		if err != nil {
			return s.handleStoreFailure(ctx, cfg, decision, count, err)
		}
		decision.Allowed = true
		decision.Used = used
		decision.Remaining = remainingOf(used, limit)
		if used > limit {
			// concurrent advisory racers crossed the limit together
			decision.Overshoot = used - limit
			decision.OverageCost = overageCost(cfg, decision.Overshoot)
		}
		return decision, nil
	}
}

func (s *Service) handleStoreFailure(ctx context.Context, cfg MetricConfig, decision *Decision, count int64, cause error) (*Decision, error) {
	s.metrics.IncStoreFailure(decision.Metric.String())
	s.logg.Error(ctx, "counter store unavailable", cause)

	if cfg.FailurePolicy == enums.FailurePolicyClosed {
		return nil, apperrors.Wrap(apperrors.CodeDependency, cause, "counter store unavailable")
	}

	// fail-open: admit now, journal the usage so reconciliation can
	// charge the counter once the store recovers
	decision.Allowed = true
	decision.FailOpen = true
	decision.Used = 0
	decision.Remaining = Unlimited
	if s.journal != nil {
		entry := JournalEntry{
			SubjectID:  decision.SubjectID,
			Metric:     decision.Metric,
			PeriodKey:  decision.PeriodKey,
			Count:      count,
			RecordedAt: s.clock(),
		}
		if payload, err := entry.Encode(); err == nil {
			if pushErr := s.journal.JournalPush(ctx, ReconcileJournal, payload, s.journalTTL); pushErr != nil {
				s.logg.Error(ctx, "journaling fail-open usage", pushErr)
			}
		}
	}
	return decision, nil
}

func (s *Service) replayDedup(ctx context.Context, input RecordEventInput) *Decision {
	if s.cache == nil || strings.TrimSpace(input.DedupKey) == "" {
		return nil
	}
	key := s.cache.DedupKey(input.SubjectID, input.DedupKey)
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	var cached Decision
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.logg.Warn(ctx, "dropping malformed dedup entry")
		return nil
	}
	cached.Deduplicated = true
	return &cached
}

// storeDedup pins the decision under the dedup key. When a concurrent
// delivery won the race, its decision is returned instead so both callers
// observe the same outcome.
func (s *Service) storeDedup(ctx context.Context, input RecordEventInput, decision *Decision) *Decision {
	if s.cache == nil || strings.TrimSpace(input.DedupKey) == "" {
		return nil
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return nil
	}
	key := s.cache.DedupKey(input.SubjectID, input.DedupKey)
	ok, err := s.cache.SetNX(ctx, key, string(payload), s.dedupTTL)
	if err != nil {
		s.logg.Warn(ctx, "storing dedup entry failed")
		return nil
	}
	if ok {
		return nil
	}
	return s.replayDedup(ctx, input)
}

func (s *Service) observe(ctx context.Context, decision *Decision) {
	outcome := metrics.OutcomeDenied
	switch {
	case decision.FailOpen:
		outcome = metrics.OutcomeFailOpen
	case decision.Allowed:
		outcome = metrics.OutcomeAllowed
	}
	s.metrics.IncDecision(decision.Metric.String(), outcome)

	if s.audit != nil {
		if err := s.audit.WriteDecision(ctx, *decision); err != nil {
			s.logg.Error(ctx, "writing decision audit row", err)
		}
	}
}

func overageCost(cfg MetricConfig, overshoot int64) *decimal.Decimal {
	if cfg.OverageUnitPrice == nil || overshoot <= 0 {
		return nil
	}
	cost := cfg.OverageUnitPrice.Mul(decimal.NewFromInt(overshoot))
	return &cost
}
