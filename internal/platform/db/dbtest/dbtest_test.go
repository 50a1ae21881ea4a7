package dbtest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationsDir(t *testing.T) {
	if _, err := os.Stat(filepath.Join(MigrationsDir(), "001_init.sql")); err != nil {
		t.Fatalf("expected the initial migration under %s: %v", MigrationsDir(), err)
	}
}
