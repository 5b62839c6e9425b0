package enums

import "fmt"

// MeterMode selects how admission is decided for a metric. Strict metering
// lets the counter store enforce the limit inside the increment itself, so
// concurrent racers at the boundary cannot overshoot. Advisory metering
// checks before incrementing and tolerates bounded overshoot under races.
type MeterMode string

const (
	MeterModeStrict   MeterMode = "strict"
	MeterModeAdvisory MeterMode = "advisory"
)

var validMeterModes = []MeterMode{
	MeterModeStrict,
	MeterModeAdvisory,
}

// String implements fmt.Stringer.
func (m MeterMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MeterMode.
func (m MeterMode) IsValid() bool {
	for _, candidate := range validMeterModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMeterMode converts raw input into a MeterMode.
func ParseMeterMode(value string) (MeterMode, error) {
	for _, candidate := range validMeterModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid meter mode %q", value)
}
