package metering

import (
	"testing"
	"time"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/errors"
)

func TestResolvePeriodDaily(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	key, err := ResolvePeriod(enums.MetricWindowDaily, at, time.UTC)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	if key != "2026-03-14" {
		t.Fatalf("expected 2026-03-14, got %s", key)
	}

	// same instant, timezone west of UTC is still on the previous day
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	key, err = ResolvePeriod(enums.MetricWindowDaily, at, denver)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	if key != "2026-03-14" {
		t.Fatalf("expected 2026-03-14 in denver, got %s", key)
	}

	late := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	key, err = ResolvePeriod(enums.MetricWindowDaily, late, denver)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	if key != "2026-03-14" {
		t.Fatalf("expected 2026-03-14 for 02:00 UTC in denver, got %s", key)
	}
}

func TestResolvePeriodDeterministic(t *testing.T) {
	at := time.Date(2026, 7, 1, 10, 15, 0, 0, time.UTC)
	first, err := ResolvePeriod(enums.MetricWindowDaily, at, time.UTC)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	second, err := ResolvePeriod(enums.MetricWindowDaily, at.Add(5*time.Hour), time.UTC)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	if first != second {
		t.Fatalf("same local day resolved to different keys: %s vs %s", first, second)
	}
}

func TestResolvePeriodLifetime(t *testing.T) {
	key, err := ResolvePeriod(enums.MetricWindowLifetime, time.Now(), nil)
	if err != nil {
		t.Fatalf("resolve period: %v", err)
	}
	if key != LifetimePeriodKey {
		t.Fatalf("expected %s, got %s", LifetimePeriodKey, key)
	}
}

func TestResolvePeriodInvalidWindow(t *testing.T) {
	_, err := ResolvePeriod(enums.MetricWindow("weekly"), time.Now(), nil)
	if err == nil {
		t.Fatalf("expected error for unknown window")
	}
	if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolvePeriodZeroTime(t *testing.T) {
	for _, window := range []enums.MetricWindow{enums.MetricWindowDaily, enums.MetricWindowLifetime} {
		_, err := ResolvePeriod(window, time.Time{}, time.UTC)
		if err == nil {
			t.Fatalf("expected error for zero time with window %s", window)
		}
		if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
}

func TestNextReset(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	reset, ok := NextReset(enums.MetricWindowDaily, at, time.UTC)
	if !ok {
		t.Fatalf("expected daily reset")
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !reset.Equal(want) {
		t.Fatalf("expected reset at %s, got %s", want, reset)
	}

	if _, ok := NextReset(enums.MetricWindowLifetime, at, time.UTC); ok {
		t.Fatalf("lifetime windows must not reset")
	}
}
