package metering

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Unlimited marks a metric as uncapped for a tier.
const Unlimited int64 = -1

// MetricConfig describes how a metric is metered, independent of tier.
type MetricConfig struct {
	Window        enums.MetricWindow
	FailurePolicy enums.FailurePolicy
	Mode          enums.MeterMode
	// OverageUnitPrice is the billable price per event over the limit,
	// nil when overage is not billable for the metric.
	OverageUnitPrice *decimal.Decimal
}

// Registry resolves plan limits and metric configurations. Lookups for
// unknown tiers or metrics fail rather than defaulting to unlimited.
type Registry struct {
	limits  map[enums.PlanTier]map[enums.Metric]int64
	configs map[enums.Metric]MetricConfig
}

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func defaultConfigs() map[enums.Metric]MetricConfig {
	return map[enums.Metric]MetricConfig{
		enums.MetricDMSent: {
			Window:           enums.MetricWindowDaily,
			FailurePolicy:    enums.FailurePolicyClosed,
			Mode:             enums.MeterModeStrict,
			OverageUnitPrice: price("0.02"),
		},
		enums.MetricCommentReplied: {
			Window:           enums.MetricWindowDaily,
			FailurePolicy:    enums.FailurePolicyOpen,
			Mode:             enums.MeterModeAdvisory,
			OverageUnitPrice: price("0.01"),
		},
		enums.MetricAIReplyGenerated: {
			Window:           enums.MetricWindowDaily,
			FailurePolicy:    enums.FailurePolicyClosed,
			Mode:             enums.MeterModeStrict,
			OverageUnitPrice: price("0.05"),
		},
		enums.MetricEmailSent: {
			Window:           enums.MetricWindowDaily,
			FailurePolicy:    enums.FailurePolicyOpen,
			Mode:             enums.MeterModeAdvisory,
			OverageUnitPrice: price("0.01"),
		},
		enums.MetricAutomationCreated: {
			Window:        enums.MetricWindowLifetime,
			FailurePolicy: enums.FailurePolicyClosed,
			Mode:          enums.MeterModeStrict,
		},
	}
}

func defaultLimits() map[enums.PlanTier]map[enums.Metric]int64 {
	return map[enums.PlanTier]map[enums.Metric]int64{
		enums.PlanTierFree: {
			enums.MetricDMSent:            50,
			enums.MetricCommentReplied:    100,
			enums.MetricAIReplyGenerated:  10,
			enums.MetricEmailSent:         25,
			enums.MetricAutomationCreated: 3,
		},
		enums.PlanTierPro: {
			enums.MetricDMSent:            Unlimited,
			enums.MetricCommentReplied:    Unlimited,
			enums.MetricAIReplyGenerated:  500,
			enums.MetricEmailSent:         1000,
			enums.MetricAutomationCreated: 100,
		},
		enums.PlanTierBusiness: {
			enums.MetricDMSent:            Unlimited,
			enums.MetricCommentReplied:    Unlimited,
			enums.MetricAIReplyGenerated:  Unlimited,
			enums.MetricEmailSent:         Unlimited,
			enums.MetricAutomationCreated: Unlimited,
		},
	}
}

// NewRegistry builds the registry from built-in defaults plus optional
// overrides expressed as a JSON object mapping "tier.metric" to a limit.
func NewRegistry(overridesJSON string) (*Registry, error) {
	r := &Registry{
		limits:  defaultLimits(),
		configs: defaultConfigs(),
	}
	if strings.TrimSpace(overridesJSON) == "" {
		return r, nil
	}

	overrides := map[string]int64{}
	if err := json.Unmarshal([]byte(overridesJSON), &overrides); err != nil {
		return nil, fmt.Errorf("parsing limit overrides: %w", err)
	}

	for key, limit := range overrides {
		parts := strings.SplitN(key, ".", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid limit override key %q (expected tier.metric)", key)
		}
		tier, err := enums.ParsePlanTier(parts[0])
		if err != nil {
			return nil, fmt.Errorf("limit override %q: %w", key, err)
		}
		metric, err := enums.ParseMetric(parts[1])
		if err != nil {
			return nil, fmt.Errorf("limit override %q: %w", key, err)
		}
		if limit < Unlimited {
			return nil, fmt.Errorf("limit override %q: limit %d out of range", key, limit)
		}
		r.limits[tier][metric] = limit
	}
	return r, nil
}

// LimitFor resolves the limit for a tier/metric pair. Unknown values are
// rejected instead of silently admitting traffic.
func (r *Registry) LimitFor(tier enums.PlanTier, metric enums.Metric) (int64, error) {
	byMetric, ok := r.limits[tier]
	if !ok {
		return 0, errors.New(errors.CodeValidation, fmt.Sprintf("unknown plan tier %q", tier))
	}
	limit, ok := byMetric[metric]
	if !ok {
		return 0, errors.New(errors.CodeValidation, fmt.Sprintf("unknown metric %q", metric))
	}
	return limit, nil
}

// ConfigFor resolves the metering configuration for a metric.
func (r *Registry) ConfigFor(metric enums.Metric) (MetricConfig, error) {
	cfg, ok := r.configs[metric]
	if !ok {
		return MetricConfig{}, errors.New(errors.CodeValidation, fmt.Sprintf("unknown metric %q", metric))
	}
	return cfg, nil
}

// PlanLimit is one metric's entitlement inside a plan listing.
type PlanLimit struct {
	Metric           enums.Metric       `json:"metric"`
	Window           enums.MetricWindow `json:"window"`
	Limit            int64              `json:"limit"`
	Unlimited        bool               `json:"unlimited"`
	OverageUnitPrice *decimal.Decimal   `json:"overage_unit_price,omitempty"`
}

// PlanDefinition is the full entitlement listing for one tier.
type PlanDefinition struct {
	Tier   enums.PlanTier `json:"tier"`
	Limits []PlanLimit    `json:"limits"`
}

// Plans returns every tier's entitlements in a stable order.
func (r *Registry) Plans() []PlanDefinition {
	plans := make([]PlanDefinition, 0, len(r.limits))
	for _, tier := range enums.PlanTiers() {
		byMetric, ok := r.limits[tier]
		if !ok {
			continue
		}
		def := PlanDefinition{Tier: tier}
		for _, metric := range enums.Metrics() {
			limit, ok := byMetric[metric]
			if !ok {
				continue
			}
			cfg := r.configs[metric]
			def.Limits = append(def.Limits, PlanLimit{
				Metric:           metric,
				Window:           cfg.Window,
				Limit:            limit,
				Unlimited:        limit == Unlimited,
				OverageUnitPrice: cfg.OverageUnitPrice,
			})
		}
		plans = append(plans, def)
	}
	return plans
}
