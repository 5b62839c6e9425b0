package metering

import (
	"fmt"
	"time"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/errors"
)

// LifetimePeriodKey is the period key shared by all lifetime counters.
const LifetimePeriodKey = "lifetime"

const dailyKeyLayout = "2006-01-02"

// ResolvePeriod maps an instant onto the period key for the given window.
// Daily windows resolve to the calendar date in the reference timezone, so
// two events in the same local day always land on the same counter.
func ResolvePeriod(window enums.MetricWindow, at time.Time, loc *time.Location) (string, error) {
	if at.IsZero() {
		return "", errors.New(errors.CodeValidation, "cannot resolve period for zero time")
	}
	if loc == nil {
		loc = time.UTC
	}
	switch window {
	case enums.MetricWindowDaily:
		return at.In(loc).Format(dailyKeyLayout), nil
	case enums.MetricWindowLifetime:
		return LifetimePeriodKey, nil
	default:
		return "", errors.New(errors.CodeValidation, fmt.Sprintf("invalid metric window %q", window))
	}
}

// NextReset returns the instant the window rolls over. Lifetime windows
// never reset, signalled by ok=false.
func NextReset(window enums.MetricWindow, at time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch window {
	case enums.MetricWindowDaily:
		local := at.In(loc)
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		return midnight.AddDate(0, 0, 1), true
	default:
		return time.Time{}, false
	}
}
