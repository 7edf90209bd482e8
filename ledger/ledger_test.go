package ledger

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	l, err := Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("Failed to open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSaveAndGetTarget(t *testing.T) {
	l := testLedger(t)

	target := &Target{
		Key:       "https://www.linkedin.com/in/jane-doe",
		Name:      "Jane Doe",
		FirstName: "Jane",
		Headline:  "Engineer",
		Company:   "Initech",
	}
	if err := l.SaveTarget(target); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}

	got, err := l.GetTarget(target.Key)
	if err != nil {
		t.Fatalf("GetTarget failed: %v", err)
	}
	if got.Name != "Jane Doe" || got.Status != StatusNew {
		t.Errorf("Got target %+v, want name=Jane Doe status=new", got)
	}
	if got.FirstSeen.IsZero() {
		t.Error("FirstSeen should be set on save")
	}
}

func TestSaveTargetUpsertPreservesStatus(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/jane-doe"

	if err := l.SaveTarget(&Target{Key: key, Name: "Jane Doe"}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}
	if err := l.RecordAction(&ActionRecord{
		TargetKey: key,
		Kind:      KindConnectRequest,
		Outcome:   OutcomeSuccess,
	}); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	// Re-discovering the same target must not reset its status
	if err := l.SaveTarget(&Target{Key: key, Name: "Jane A. Doe"}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}

	got, err := l.GetTarget(key)
	if err != nil {
		t.Fatalf("GetTarget failed: %v", err)
	}
	if got.Status != StatusRequested {
		t.Errorf("Status = %s after re-save, want %s", got.Status, StatusRequested)
	}
}

func TestGetTargetNotFound(t *testing.T) {
	l := testLedger(t)

	got, err := l.GetTarget("https://www.linkedin.com/in/nobody")
	if err != nil {
		t.Fatalf("GetTarget failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for unknown target, got %+v", got)
	}
}

func TestHasActed(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/jane-doe"

	if err := l.SaveTarget(&Target{Key: key}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}

	acted, err := l.HasActed(key, KindConnectRequest)
	if err != nil {
		t.Fatalf("HasActed failed: %v", err)
	}
	if acted {
		t.Error("HasActed should be false before any record")
	}

	if err := l.RecordAction(&ActionRecord{
		TargetKey: key,
		Kind:      KindConnectRequest,
		Outcome:   OutcomeSuccess,
	}); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	acted, err = l.HasActed(key, KindConnectRequest)
	if err != nil {
		t.Fatalf("HasActed failed: %v", err)
	}
	if !acted {
		t.Error("HasActed should be true after a success record")
	}

	// Other kinds stay independent
	acted, err = l.HasActed(key, KindFollowUpMessage)
	if err != nil {
		t.Fatalf("HasActed failed: %v", err)
	}
	if acted {
		t.Error("HasActed for a different kind should be false")
	}
}

func TestHasActedCountsFailures(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/timeout-case"

	if err := l.SaveTarget(&Target{Key: key}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}
	// A timed-out send may have landed server-side; it must suppress retries
	if err := l.RecordAction(&ActionRecord{
		TargetKey: key,
		Kind:      KindConnectRequest,
		Outcome:   OutcomeFailure,
		Reason:    "confirmation timeout",
	}); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	acted, err := l.HasActed(key, KindConnectRequest)
	if err != nil {
		t.Fatalf("HasActed failed: %v", err)
	}
	if !acted {
		t.Error("A recorded failure should count as acted")
	}
}

func TestHasActedIgnoresCappedSkips(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/capped-case"

	if err := l.SaveTarget(&Target{Key: key}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}
	if err := l.RecordAction(&ActionRecord{
		TargetKey: key,
		Kind:      KindConnectRequest,
		Outcome:   OutcomeSkippedCapped,
		Reason:    "daily cap reached",
	}); err != nil {
		t.Fatalf("RecordAction failed: %v", err)
	}

	acted, err := l.HasActed(key, KindConnectRequest)
	if err != nil {
		t.Fatalf("HasActed failed: %v", err)
	}
	if acted {
		t.Error("A capped skip never executed and must stay eligible")
	}
}

func TestCountSinceWindow(t *testing.T) {
	l := testLedger(t)
	now := time.Now()

	records := []struct {
		key     string
		outcome Outcome
		age     time.Duration
	}{
		{"https://www.linkedin.com/in/a", OutcomeSuccess, 1 * time.Hour},
		{"https://www.linkedin.com/in/b", OutcomeSuccess, 23 * time.Hour},
		{"https://www.linkedin.com/in/c", OutcomeSuccess, 25 * time.Hour}, // outside window
		{"https://www.linkedin.com/in/d", OutcomeFailure, 1 * time.Hour}, // failures don't count
		{"https://www.linkedin.com/in/e", OutcomeSkippedCapped, 1 * time.Hour},
	}
	for _, rec := range records {
		if err := l.SaveTarget(&Target{Key: rec.key}); err != nil {
			t.Fatalf("SaveTarget failed: %v", err)
		}
		if err := l.RecordAction(&ActionRecord{
			TargetKey: rec.key,
			Kind:      KindConnectRequest,
			Outcome:   rec.outcome,
			Timestamp: now.Add(-rec.age),
		}); err != nil {
			t.Fatalf("RecordAction failed: %v", err)
		}
	}

	count, err := l.CountSince(KindConnectRequest, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountSince = %d, want 2 (successes inside the window only)", count)
	}
}

func TestStatusTransitions(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/jane-doe"

	if err := l.SaveTarget(&Target{Key: key}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}

	steps := []struct {
		kind    ActionKind
		outcome Outcome
		want    TargetStatus
	}{
		{KindSearchVisit, OutcomeSuccess, StatusNew},
		{KindConnectRequest, OutcomeFailure, StatusNew},
		{KindConnectRequest, OutcomeSuccess, StatusRequested},
		{KindFollowUpMessage, OutcomeSuccess, StatusMessaged},
	}
	for _, step := range steps {
		if err := l.RecordAction(&ActionRecord{
			TargetKey: key,
			Kind:      step.kind,
			Outcome:   step.outcome,
		}); err != nil {
			t.Fatalf("RecordAction(%s/%s) failed: %v", step.kind, step.outcome, err)
		}
		got, err := l.GetTarget(key)
		if err != nil {
			t.Fatalf("GetTarget failed: %v", err)
		}
		if got.Status != step.want {
			t.Errorf("After %s/%s: status = %s, want %s", step.kind, step.outcome, got.Status, step.want)
		}
	}
}

func TestTargetsByStatusPaging(t *testing.T) {
	l := testLedger(t)

	keys := []string{
		"https://www.linkedin.com/in/a",
		"https://www.linkedin.com/in/b",
		"https://www.linkedin.com/in/c",
	}
	for _, key := range keys {
		if err := l.SaveTarget(&Target{Key: key}); err != nil {
			t.Fatalf("SaveTarget failed: %v", err)
		}
	}

	page1, err := l.TargetsByStatus(StatusNew, 2, 0)
	if err != nil {
		t.Fatalf("TargetsByStatus failed: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("Expected 2 targets on first page, got %d", len(page1))
	}

	page2, err := l.TargetsByStatus(StatusNew, 2, 2)
	if err != nil {
		t.Fatalf("TargetsByStatus failed: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("Expected 1 target on second page, got %d", len(page2))
	}
	if page2[0].Key == page1[0].Key || page2[0].Key == page1[1].Key {
		t.Error("Pages overlap")
	}
}

func TestRecordsForTarget(t *testing.T) {
	l := testLedger(t)
	key := "https://www.linkedin.com/in/jane-doe"

	if err := l.SaveTarget(&Target{Key: key}); err != nil {
		t.Fatalf("SaveTarget failed: %v", err)
	}
	for _, outcome := range []Outcome{OutcomeFailure, OutcomeSuccess} {
		if err := l.RecordAction(&ActionRecord{
			TargetKey: key,
			Kind:      KindConnectRequest,
			Outcome:   outcome,
		}); err != nil {
			t.Fatalf("RecordAction failed: %v", err)
		}
	}

	recs, err := l.RecordsForTarget(key)
	if err != nil {
		t.Fatalf("RecordsForTarget failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
}

func TestOperatorFlags(t *testing.T) {
	l := testLedger(t)

	open, err := l.HasOpenOperatorFlag()
	if err != nil {
		t.Fatalf("HasOpenOperatorFlag failed: %v", err)
	}
	if open {
		t.Error("Fresh ledger should have no open flags")
	}

	if err := l.RaiseOperatorFlag("challenge_detected"); err != nil {
		t.Fatalf("RaiseOperatorFlag failed: %v", err)
	}

	open, err = l.HasOpenOperatorFlag()
	if err != nil {
		t.Fatalf("HasOpenOperatorFlag failed: %v", err)
	}
	if !open {
		t.Error("Flag should be open after raise")
	}

	if err := l.ClearOperatorFlags(); err != nil {
		t.Fatalf("ClearOperatorFlags failed: %v", err)
	}

	open, err = l.HasOpenOperatorFlag()
	if err != nil {
		t.Fatalf("HasOpenOperatorFlag failed: %v", err)
	}
	if open {
		t.Error("Flag should be closed after clear")
	}
}

func TestConcurrentRecording(t *testing.T) {
	l := testLedger(t)

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := "https://www.linkedin.com/in/" + string(rune('a'+w)) + string(rune('0'+i))
				if err := l.SaveTarget(&Target{Key: key}); err != nil {
					errs <- err
					return
				}
				if err := l.RecordAction(&ActionRecord{
					TargetKey: key,
					Kind:      KindConnectRequest,
					Outcome:   OutcomeSuccess,
				}); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Concurrent write failed: %v", err)
	}

	count, err := l.CountSince(KindConnectRequest, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != workers*perWorker {
		t.Errorf("CountSince = %d, want %d", count, workers*perWorker)
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	l := testLedger(t)

	var mode string
	if err := l.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %s, want wal", mode)
	}

	var timeout int
	if err := l.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("Failed to read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestRecordSuccessIfUnderCap(t *testing.T) {
	l := testLedger(t)
	windowStart := time.Now().Add(-24 * time.Hour)

	keys := []string{
		"https://www.linkedin.com/in/a",
		"https://www.linkedin.com/in/b",
		"https://www.linkedin.com/in/c",
	}
	for _, key := range keys {
		if err := l.SaveTarget(&Target{Key: key}); err != nil {
			t.Fatalf("SaveTarget failed: %v", err)
		}
	}

	// Cap of 2: the first two land, the third is refused with no write
	for i, key := range keys {
		admitted, err := l.RecordSuccessIfUnderCap(&ActionRecord{
			TargetKey: key,
			Kind:      KindConnectRequest,
		}, 2, windowStart)
		if err != nil {
			t.Fatalf("RecordSuccessIfUnderCap failed: %v", err)
		}
		if want := i < 2; admitted != want {
			t.Errorf("Record %d: admitted = %v, want %v", i, admitted, want)
		}
	}

	count, err := l.CountSince(KindConnectRequest, windowStart)
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountSince = %d, want exactly the cap of 2", count)
	}

	// The refused record left no trace
	recs, err := l.RecordsForTarget(keys[2])
	if err != nil {
		t.Fatalf("RecordsForTarget failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Refused record wrote %d rows, want 0", len(recs))
	}
}
