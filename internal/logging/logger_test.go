package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitialize_DisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(filepath.Join(dir, "logs"), Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := Get(CategoryStore)
	l.Info("should not panic or write")

	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Fatalf("expected no logs directory to be created in disabled mode")
	}
}

func TestInitialize_EnabledWritesFile(t *testing.T) {
	dir := t.TempDir()
	logsDirPath := filepath.Join(dir, "logs")
	if err := Initialize(logsDirPath, Config{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	l := Get(CategoryIndex)
	l.Info("hello %s", "world")
	l.Debug("debugging")

	entries, err := os.ReadDir(logsDirPath)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one .log file, got %v", entries)
	}
}

func TestIsCategoryEnabled_PerCategoryOverride(t *testing.T) {
	dir := t.TempDir()
	Initialize(filepath.Join(dir, "logs"), Config{
		DebugMode:  true,
		Categories: map[string]bool{"store": true, "search": false},
	})
	defer CloseAll()

	if !IsCategoryEnabled(CategoryStore) {
		t.Fatalf("expected store category enabled")
	}
	if IsCategoryEnabled(CategorySearch) {
		t.Fatalf("expected search category disabled")
	}
	if !IsCategoryEnabled(CategoryRecall) {
		t.Fatalf("expected unlisted category to default enabled")
	}
}

func TestTimer_StopWithThreshold(t *testing.T) {
	dir := t.TempDir()
	Initialize(filepath.Join(dir, "logs"), Config{DebugMode: true, Level: "debug"})
	defer CloseAll()

	timer := StartTimer(CategoryPonder, "unit-test-op")
	d := timer.Stop()
	if d < 0 {
		t.Fatalf("expected non-negative duration")
	}
}
