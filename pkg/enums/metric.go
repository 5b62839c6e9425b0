package enums

import "fmt"

// Metric identifies a countable event type subject to plan limits.
type Metric string

const (
	MetricDMSent            Metric = "dm_sent"
	MetricCommentReplied    Metric = "comment_replied"
	MetricAIReplyGenerated  Metric = "ai_reply_generated"
	MetricEmailSent         Metric = "email_sent"
	MetricAutomationCreated Metric = "automation_created"
)

var validMetrics = []Metric{
	MetricDMSent,
	MetricCommentReplied,
	MetricAIReplyGenerated,
	MetricEmailSent,
	MetricAutomationCreated,
}

// String implements fmt.Stringer.
func (m Metric) String() string {
	return string(m)
}

// IsValid reports whether the value is a known Metric.
func (m Metric) IsValid() bool {
	for _, candidate := range validMetrics {
		if candidate == m {
			return true
		}
	}
	return false
}

// Metrics returns all known metrics in declaration order.
func Metrics() []Metric {
	out := make([]Metric, len(validMetrics))
	copy(out, validMetrics)
	return out
}

// ParseMetric converts raw input into a Metric.
func ParseMetric(value string) (Metric, error) {
	for _, candidate := range validMetrics {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid metric %q", value)
}
