package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_RotatesBeforeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	w, err := newWriter(path, 64)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 30) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	// third write crossed the cap, so the first two lines moved to the backup
	backup, err := os.ReadFile(path + ".old")
	if err != nil {
		t.Fatalf("backup not created: %v", err)
	}
	if got := bytes.Count(backup, []byte("\n")); got != 2 {
		t.Fatalf("expected 2 lines in backup, got %d", got)
	}

	live, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read live log: %v", err)
	}
	if got := bytes.Count(live, []byte("\n")); got != 1 {
		t.Fatalf("expected 1 line in live log, got %d", got)
	}
}

func TestRotatingWriter_OversizedLeftoverBecomesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("y", 100)), 0644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	w, err := newWriter(path, 64)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(path + ".old"); err != nil {
		t.Fatalf("oversized leftover not rotated: %v", err)
	}
	if w.size != 0 {
		t.Fatalf("fresh log should start empty, size %d", w.size)
	}
}
