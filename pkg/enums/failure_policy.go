package enums

import "fmt"

// FailurePolicy decides how a metric behaves when the counter store is
// unreachable: deny the action or admit it and journal for reconciliation.
type FailurePolicy string

const (
	FailurePolicyClosed FailurePolicy = "fail_closed"
	FailurePolicyOpen   FailurePolicy = "fail_open"
)

var validFailurePolicies = []FailurePolicy{
	FailurePolicyClosed,
	FailurePolicyOpen,
}

// String implements fmt.Stringer.
func (f FailurePolicy) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FailurePolicy.
func (f FailurePolicy) IsValid() bool {
	for _, candidate := range validFailurePolicies {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFailurePolicy converts raw input into a FailurePolicy.
func ParseFailurePolicy(value string) (FailurePolicy, error) {
	for _, candidate := range validFailurePolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid failure policy %q", value)
}
