package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quotaflow/quotaflow-backend/pkg/migrate"
)

func TestUsageCountersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_usage_counters.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no usage counters migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS usage_counters",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_counters_key",
		"CHECK (count >= 0)",
		"DROP TABLE IF EXISTS usage_counters",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
