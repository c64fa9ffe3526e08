package main

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 {
		t.Fatalf("expected first migration version 1, got %d", migrations[0].Version)
	}
	if migrations[1].Version != 2 {
		t.Fatalf("expected second migration version 2, got %d", migrations[1].Version)
	}
	if migrations[0].UpSQL == "" || migrations[0].DownSQL == "" {
		t.Fatal("expected non-empty up/down sql for first migration")
	}
}

func TestCoreTablesMigrationShape(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := migrations[0]
	for _, table := range []string{"agents", "trades", "positions"} {
		if !strings.Contains(first.UpSQL, table) {
			t.Errorf("core migration missing %s table", table)
		}
	}
	if !strings.Contains(migrations[1].UpSQL, "daily_performance") {
		t.Error("second migration missing daily_performance table")
	}
}
