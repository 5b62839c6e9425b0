package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quotaflow/quotaflow-backend/internal/metering"
)

func TestListPlans(t *testing.T) {
	registry, err := metering.NewRegistry("")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	rec := httptest.NewRecorder()

	ListPlans(registry, nil)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var payload struct {
		Data struct {
			Plans []metering.PlanDefinition `json:"plans"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data.Plans) != 3 {
		t.Fatalf("expected 3 plans got %d", len(payload.Data.Plans))
	}
	if payload.Data.Plans[0].Tier.String() != "free" {
		t.Fatalf("expected free first got %s", payload.Data.Plans[0].Tier)
	}
}

func TestListPlansWithoutRegistry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	rec := httptest.NewRecorder()

	ListPlans(nil, nil)(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
