package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryMetric reads an optional metric filter from the query string.
func ParseQueryMetric(r *http.Request, key string) (*enums.Metric, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	metric, err := enums.ParseMetric(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown metric").WithDetails(map[string]any{"field": key, "value": raw})
	}
	return &metric, nil
}

// ParseQueryTier reads a required plan tier from the query string.
func ParseQueryTier(r *http.Request, key string) (enums.PlanTier, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "plan tier is required").WithDetails(map[string]any{"field": key})
	}
	tier, err := enums.ParsePlanTier(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown plan tier").WithDetails(map[string]any{"field": key, "value": raw})
	}
	return tier, nil
}
