package enums

import "fmt"

// MetricWindow is the period over which a metric's counter resets.
type MetricWindow string

const (
	MetricWindowDaily    MetricWindow = "daily"
	MetricWindowLifetime MetricWindow = "lifetime"
)

var validMetricWindows = []MetricWindow{
	MetricWindowDaily,
	MetricWindowLifetime,
}

// String implements fmt.Stringer.
func (w MetricWindow) String() string {
	return string(w)
}

// IsValid reports whether the value is a known MetricWindow.
func (w MetricWindow) IsValid() bool {
	for _, candidate := range validMetricWindows {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseMetricWindow converts raw input into a MetricWindow.
func ParseMetricWindow(value string) (MetricWindow, error) {
	for _, candidate := range validMetricWindows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid metric window %q", value)
}
