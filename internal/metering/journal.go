package metering

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quotaflow/quotaflow-backend/pkg/enums"
)

// ReconcileJournal names the journal holding usage admitted while the
// counter store was unreachable. The reconciliation job drains it back
// into the store.
const ReconcileJournal = "usage_reconcile"

// JournalEntry is one fail-open admission awaiting reconciliation.
type JournalEntry struct {
	SubjectID  string       `json:"subject_id"`
	Metric     enums.Metric `json:"metric"`
	PeriodKey  string       `json:"period_key"`
	Count      int64        `json:"count"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Encode serializes the entry for journal storage.
func (e JournalEntry) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding journal entry: %w", err)
	}
	return string(raw), nil
}

// DecodeJournalEntry parses a stored journal entry.
func DecodeJournalEntry(raw string) (JournalEntry, error) {
	var entry JournalEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return JournalEntry{}, fmt.Errorf("decoding journal entry: %w", err)
	}
	if entry.SubjectID == "" || !entry.Metric.IsValid() || entry.PeriodKey == "" || entry.Count <= 0 {
		return JournalEntry{}, fmt.Errorf("journal entry %q is incomplete", raw)
	}
	return entry, nil
}
