package validators

import (
	"net/http/httptest"
	"testing"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/history?limit=40", nil)
	got, err := ParseQueryInt(r, "limit", 25, 1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 40 {
		t.Fatalf("expected 40 got %d", got)
	}

	r = httptest.NewRequest("GET", "/history", nil)
	got, err = ParseQueryInt(r, "limit", 25, 1, 100)
	if err != nil || got != 25 {
		t.Fatalf("expected default 25 got %d err %v", got, err)
	}

	r = httptest.NewRequest("GET", "/history?limit=500", nil)
	if _, err := ParseQueryInt(r, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected out of range error")
	}

	r = httptest.NewRequest("GET", "/history?limit=abc", nil)
	_, err = ParseQueryInt(r, "limit", 25, 1, 100)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestParseQueryMetric(t *testing.T) {
	r := httptest.NewRequest("GET", "/history?metric=dm_sent", nil)
	metric, err := ParseQueryMetric(r, "metric")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metric == nil || *metric != enums.MetricDMSent {
		t.Fatalf("expected dm_sent got %v", metric)
	}

	r = httptest.NewRequest("GET", "/history", nil)
	metric, err = ParseQueryMetric(r, "metric")
	if err != nil || metric != nil {
		t.Fatalf("expected nil metric for absent filter, got %v err %v", metric, err)
	}

	r = httptest.NewRequest("GET", "/history?metric=bogus", nil)
	if _, err := ParseQueryMetric(r, "metric"); err == nil {
		t.Fatal("expected unknown metric error")
	}
}

func TestParseQueryTier(t *testing.T) {
	r := httptest.NewRequest("GET", "/usage?tier=pro", nil)
	tier, err := ParseQueryTier(r, "tier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != enums.PlanTierPro {
		t.Fatalf("expected pro got %s", tier)
	}

	r = httptest.NewRequest("GET", "/usage", nil)
	if _, err := ParseQueryTier(r, "tier"); err == nil {
		t.Fatal("expected missing tier error")
	}
}
