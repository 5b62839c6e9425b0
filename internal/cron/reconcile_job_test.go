package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quotaflow/quotaflow-backend/internal/metering"
	"github.com/quotaflow/quotaflow-backend/pkg/enums"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

type fakeJournal struct {
	entries  []string
	drainErr error
}

func (f *fakeJournal) JournalPush(ctx context.Context, name string, payload string, ttl time.Duration) error {
	f.entries = append(f.entries, payload)
	return nil
}

func (f *fakeJournal) JournalDrain(ctx context.Context, name string, max int) ([]string, error) {
	if f.drainErr != nil {
		return nil, f.drainErr
	}
	if len(f.entries) == 0 {
		return nil, nil
	}
	n := max
	if n > len(f.entries) {
		n = len(f.entries)
	}
	out := f.entries[:n]
	f.entries = f.entries[n:]
	return out, nil
}

func (f *fakeJournal) JournalLen(ctx context.Context, name string) (int64, error) {
	return int64(len(f.entries)), nil
}

type fakeCounters struct {
	counts  map[string]int64
	failFor map[string]error
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: map[string]int64{}, failFor: map[string]error{}}
}

func (f *fakeCounters) Increment(ctx context.Context, subjectID string, metric enums.Metric, periodKey string, by int64) (int64, error) {
	key := subjectID + "|" + string(metric) + "|" + periodKey
	if err, ok := f.failFor[subjectID]; ok {
		return 0, err
	}
	f.counts[key] += by
	return f.counts[key], nil
}

func seedJournal(t *testing.T, journal *fakeJournal, entries ...metering.JournalEntry) {
	t.Helper()
	for _, entry := range entries {
		payload, err := entry.Encode()
		if err != nil {
			t.Fatalf("encode entry: %v", err)
		}
		journal.entries = append(journal.entries, payload)
	}
}

func newReconcileJob(t *testing.T, journal *fakeJournal, counters *fakeCounters) Job {
	t.Helper()
	job, err := NewReconcileJob(ReconcileJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Journal: journal,
		Repo:    counters,
	})
	if err != nil {
		t.Fatalf("new reconcile job: %v", err)
	}
	return job
}

func TestReconcileJobAppliesJournaledUsage(t *testing.T) {
	journal := &fakeJournal{}
	counters := newFakeCounters()
	seedJournal(t, journal,
		metering.JournalEntry{SubjectID: "acct-1", Metric: enums.MetricCommentReplied, PeriodKey: "2026-03-14", Count: 2},
		metering.JournalEntry{SubjectID: "acct-2", Metric: enums.MetricEmailSent, PeriodKey: "2026-03-14", Count: 1},
	)

	job := newReconcileJob(t, journal, counters)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := counters.counts["acct-1|comment_replied|2026-03-14"]; got != 2 {
		t.Fatalf("acct-1 count = %d, want 2", got)
	}
	if got := counters.counts["acct-2|email_sent|2026-03-14"]; got != 1 {
		t.Fatalf("acct-2 count = %d, want 1", got)
	}
	if len(journal.entries) != 0 {
		t.Fatalf("journal should be empty, has %d entries", len(journal.entries))
	}
}

func TestReconcileJobNoopOnEmptyJournal(t *testing.T) {
	job := newReconcileJob(t, &fakeJournal{}, newFakeCounters())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestReconcileJobRequeuesFailedEntries(t *testing.T) {
	journal := &fakeJournal{}
	counters := newFakeCounters()
	counters.failFor["acct-2"] = fmt.Errorf("still down")
	seedJournal(t, journal,
		metering.JournalEntry{SubjectID: "acct-1", Metric: enums.MetricCommentReplied, PeriodKey: "2026-03-14", Count: 1},
		metering.JournalEntry{SubjectID: "acct-2", Metric: enums.MetricCommentReplied, PeriodKey: "2026-03-14", Count: 3},
	)

	job := newReconcileJob(t, journal, counters)
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected aggregated error when entries fail")
	}

	if got := counters.counts["acct-1|comment_replied|2026-03-14"]; got != 1 {
		t.Fatalf("healthy entry must still apply, count = %d", got)
	}
	if len(journal.entries) != 1 {
		t.Fatalf("failed entry must be requeued, journal has %d entries", len(journal.entries))
	}
	entry, err := metering.DecodeJournalEntry(journal.entries[0])
	if err != nil {
		t.Fatalf("decode requeued entry: %v", err)
	}
	if entry.SubjectID != "acct-2" || entry.Count != 3 {
		t.Fatalf("requeued entry mismatch: %+v", entry)
	}
}

func TestReconcileJobDropsMalformedEntries(t *testing.T) {
	journal := &fakeJournal{entries: []string{"{not json"}}
	counters := newFakeCounters()

	job := newReconcileJob(t, journal, counters)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("malformed entries are dropped, not errors: %v", err)
	}
	if len(journal.entries) != 0 {
		t.Fatalf("malformed entry must not be requeued")
	}
}
