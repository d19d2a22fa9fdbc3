package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	l := New(path)

	merged, err := l.WasMerged("dumps/@alice-1.txt")
	if err != nil {
		t.Fatalf("WasMerged: %v", err)
	}
	if merged {
		t.Fatal("empty ledger reports a merged dump")
	}

	for range 3 {
		if err := l.Record("dumps/@alice-1.txt"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := l.Record("dumps/./@bob-2.txt"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "dumps/@alice-1.txt\ndumps/@bob-2.txt\n"
	if string(data) != want {
		t.Errorf("ledger file = %q, want %q", data, want)
	}

	if merged, _ := l.WasMerged("dumps/@bob-2.txt"); !merged {
		t.Error("WasMerged(@bob-2) = false after Record")
	}
}

func TestLedgerSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	if err := New(path).Record("a/@x-1.txt"); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	merged, err := l.WasMerged("a/@x-1.txt")
	if err != nil || !merged {
		t.Fatalf("WasMerged after restart = (%v, %v), want (true, nil)", merged, err)
	}
	if n, _ := l.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestLedgerReadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	if err := os.WriteFile(path, []byte("a/@x-1.txt\n\n  \na/@x-1.txt\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	if n, err := l.Len(); err != nil || n != 1 {
		t.Fatalf("Len = (%d, %v), want (1, nil)", n, err)
	}

	// Later edits to the file are not observed: the cache is authoritative once loaded.
	if err := os.WriteFile(path, []byte("a/@y-2.txt\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if merged, _ := l.WasMerged("a/@y-2.txt"); merged {
		t.Error("ledger re-read the log after it was loaded")
	}
}

func TestRecordDoesNotDuplicateExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.txt")
	if err := os.WriteFile(path, []byte("a/@x-1.txt\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := New(path).Record("a/@x-1.txt"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "@x-1"); got != 1 {
		t.Errorf("entry appears %d times, want 1", got)
	}
}
