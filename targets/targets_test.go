package targets

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSliceSource(t *testing.T) {
	targets := []*ledger.Target{
		{Key: "https://www.linkedin.com/in/a"},
		{Key: "https://www.linkedin.com/in/b"},
		{Key: "https://www.linkedin.com/in/c"},
	}
	src := NewSliceSource(targets, 0)

	var got []string
	for {
		target, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, target.Key)
	}
	if len(got) != 3 {
		t.Fatalf("Yielded %d targets, want 3", len(got))
	}

	// Exhausted source stays exhausted
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after exhaustion, got %v", err)
	}
}

func TestSliceSourceOffsetRestart(t *testing.T) {
	targets := []*ledger.Target{
		{Key: "https://www.linkedin.com/in/a"},
		{Key: "https://www.linkedin.com/in/b"},
		{Key: "https://www.linkedin.com/in/c"},
	}
	src := NewSliceSource(targets, 2)

	target, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if target.Key != targets[2].Key {
		t.Errorf("Offset restart yielded %s, want %s", target.Key, targets[2].Key)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestLedgerSourcePagesThroughStatus(t *testing.T) {
	l := testLedger(t)

	// More targets than one batch so paging is exercised
	keys := make([]string, 0, 25)
	for c := 'a'; c < 'a'+25; c++ {
		key := "https://www.linkedin.com/in/user-" + string(c)
		keys = append(keys, key)
		if err := l.SaveTarget(&ledger.Target{Key: key}); err != nil {
			t.Fatalf("SaveTarget failed: %v", err)
		}
	}

	src := NewLedgerSource(l, ledger.StatusNew, 0, 0)
	seen := make(map[string]bool)
	for {
		target, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if seen[target.Key] {
			t.Fatalf("Target %s yielded twice", target.Key)
		}
		seen[target.Key] = true
	}
	if len(seen) != len(keys) {
		t.Errorf("Yielded %d targets, want %d", len(seen), len(keys))
	}
}

func TestLedgerSourceLimit(t *testing.T) {
	l := testLedger(t)
	for c := 'a'; c < 'a'+5; c++ {
		if err := l.SaveTarget(&ledger.Target{Key: "https://www.linkedin.com/in/" + string(c)}); err != nil {
			t.Fatalf("SaveTarget failed: %v", err)
		}
	}

	src := NewLedgerSource(l, ledger.StatusNew, 0, 3)
	count := 0
	for {
		_, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("Yielded %d targets, want limit of 3", count)
	}
}

func TestLedgerSourceFiltersStatus(t *testing.T) {
	l := testLedger(t)

	connected := "https://www.linkedin.com/in/connected-one"
	if err := l.SaveTarget(&ledger.Target{Key: connected, Status: ledger.StatusConnected}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}
	if err := l.SaveTarget(&ledger.Target{Key: "https://www.linkedin.com/in/fresh-one"}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}

	src := NewLedgerSource(l, ledger.StatusConnected, 0, 0)
	target, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if target.Key != connected {
		t.Errorf("Yielded %s, want %s", target.Key, connected)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}
