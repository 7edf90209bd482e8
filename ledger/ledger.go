// Package ledger provides the durable append-only record of every attempted
// campaign action, backed by SQLite. The ledger is the source of truth for
// deduplication and for the rolling daily counters the rate governor reads.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// ErrStorage marks ledger storage failures. A run must halt when it sees
// this: uncounted actions cannot be permitted.
var ErrStorage = errors.New("ledger storage unavailable")

// ActionKind identifies the kind of campaign action taken against a target
type ActionKind string

// Supported action kinds
const (
	KindSearchVisit     ActionKind = "search_visit"
	KindConnectRequest  ActionKind = "connect_request"
	KindFollowUpMessage ActionKind = "follow_up_message"
)

// Outcome is the recorded result of an attempted action
type Outcome string

// Supported outcomes. Duplicate skips are deliberately absent: they are
// never written to the ledger, only logged, so counters stay skew-free.
const (
	OutcomeSuccess       Outcome = "success"
	OutcomeFailure       Outcome = "failure"
	OutcomeSkippedCapped Outcome = "skipped_capped"
)

// TargetStatus is the last-known state of a target
type TargetStatus string

// Target statuses
const (
	StatusNew       TargetStatus = "new"
	StatusRequested TargetStatus = "requested"
	StatusConnected TargetStatus = "connected"
	StatusMessaged  TargetStatus = "messaged"
	StatusSkipped   TargetStatus = "skipped"
	StatusBlocked   TargetStatus = "blocked"
)

// Target is a unique profile identity a campaign acts upon.
// Targets are created on first encounter and never deleted.
type Target struct {
	Key        string       `json:"key"` // profile URL or stable ID
	Name       string       `json:"name"`
	FirstName  string       `json:"first_name"`
	Headline   string       `json:"headline"`
	Company    string       `json:"company"`
	Status     TargetStatus `json:"status"`
	FirstSeen  time.Time    `json:"first_seen"`
	LastAction time.Time    `json:"last_action"`
}

// ActionRecord is the immutable fact that a target received an action
type ActionRecord struct {
	ID        int64      `json:"id"`
	TargetKey string     `json:"target_key"`
	Kind      ActionKind `json:"kind"`
	Outcome   Outcome    `json:"outcome"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
}

// Ledger wraps the SQLite store. Writes are serialized through mu and each
// record lands in its own transaction, so CountSince readers in other
// sessions never observe a half-written record.
type Ledger struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// Open creates or opens the ledger database at the given path
func Open(dbPath string, log *logger.Logger) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create ledger directory: %v", ErrStorage, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorage, err)
	}

	l := &Ledger{
		db:     db,
		logger: log.WithModule("ledger"),
	}

	if err := l.initSchema(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", ErrStorage, err)
	}

	l.logger.Info("Ledger opened")
	return l, nil
}

// initSchema creates the ledger tables if they don't exist
func (l *Ledger) initSchema() error {
	schema := `
	-- Targets table: one row per profile identity, never deleted
	CREATE TABLE IF NOT EXISTS targets (
		key TEXT PRIMARY KEY,
		name TEXT,
		first_name TEXT,
		headline TEXT,
		company TEXT,
		status TEXT NOT NULL DEFAULT 'new',
		first_seen DATETIME NOT NULL,
		last_action DATETIME
	);

	-- Action records: append-only, one row per attempted action
	CREATE TABLE IF NOT EXISTS action_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY (target_key) REFERENCES targets(key)
	);

	-- Operator flags: raised when a run halts on a security challenge,
	-- cleared manually after human intervention
	CREATE TABLE IF NOT EXISTS operator_flags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reason TEXT NOT NULL,
		raised_at DATETIME NOT NULL,
		cleared_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind_time ON action_records(kind, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_records_target_kind ON action_records(target_key, kind);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveTarget inserts a target on first encounter or refreshes its profile
// fields on later ones. First-seen timestamps and status are preserved.
func (l *Ledger) SaveTarget(t *Target) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.Status == "" {
		t.Status = StatusNew
	}
	firstSeen := t.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}

	query := `
		INSERT INTO targets (key, name, first_name, headline, company, status, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			first_name = excluded.first_name,
			headline = excluded.headline,
			company = excluded.company
	`

	_, err := l.db.Exec(query, t.Key, t.Name, t.FirstName, t.Headline, t.Company, string(t.Status), firstSeen)
	if err != nil {
		return fmt.Errorf("%w: failed to save target: %v", ErrStorage, err)
	}

	l.logger.WithField("target", t.Key).Debug("Target saved")
	return nil
}

// GetTarget retrieves a target by key, or nil if unknown
func (l *Ledger) GetTarget(key string) (*Target, error) {
	query := `SELECT key, name, first_name, headline, company, status, first_seen, COALESCE(last_action, first_seen)
		FROM targets WHERE key = ?`

	t := &Target{}
	var status string
	err := l.db.QueryRow(query, key).Scan(
		&t.Key, &t.Name, &t.FirstName, &t.Headline, &t.Company,
		&status, &t.FirstSeen, &t.LastAction,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get target: %v", ErrStorage, err)
	}
	t.Status = TargetStatus(status)
	return t, nil
}

// RecordAction appends an immutable action record and updates the target's
// last-action timestamp and status in the same transaction. Once written,
// records are never mutated or deleted.
func (l *Ledger) RecordAction(rec *ActionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO action_records (target_key, kind, outcome, reason, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.TargetKey, string(rec.Kind), string(rec.Outcome), rec.Reason, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert action record: %v", ErrStorage, err)
	}
	rec.ID, _ = result.LastInsertId()

	if err := updateTargetTx(tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit action record: %v", ErrStorage, err)
	}

	l.logger.ActionOutcome(rec.TargetKey, string(rec.Kind), string(rec.Outcome), rec.Reason)
	return nil
}

// RecordSuccessIfUnderCap appends a success record only if the trailing
// window still holds fewer than cap successes of the kind. Count and insert
// run as a single statement, so two sessions sharing the ledger can never
// both fill the last slot of a cap. Returns false, with nothing written,
// when the window is already full.
func (l *Ledger) RecordSuccessIfUnderCap(rec *ActionRecord, cap int, windowStart time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Outcome = OutcomeSuccess

	tx, err := l.db.Begin()
	if err != nil {
		return false, fmt.Errorf("%w: failed to begin transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO action_records (target_key, kind, outcome, reason, recorded_at)
		SELECT ?, ?, ?, ?, ?
		WHERE (SELECT COUNT(*) FROM action_records
			WHERE kind = ? AND outcome = ? AND recorded_at >= ?) < ?`,
		rec.TargetKey, string(rec.Kind), string(OutcomeSuccess), rec.Reason, rec.Timestamp,
		string(rec.Kind), string(OutcomeSuccess), windowStart, cap,
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to insert action record: %v", ErrStorage, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: failed to check insert result: %v", ErrStorage, err)
	}
	if inserted == 0 {
		return false, nil
	}
	rec.ID, _ = result.LastInsertId()

	if err := updateTargetTx(tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: failed to commit action record: %v", ErrStorage, err)
	}

	l.logger.ActionOutcome(rec.TargetKey, string(rec.Kind), string(rec.Outcome), rec.Reason)
	return true, nil
}

// updateTargetTx refreshes the target's status and last-action timestamp
// inside the record's transaction
func updateTargetTx(tx *sql.Tx, rec *ActionRecord) error {
	var err error
	if status := statusAfter(rec.Kind, rec.Outcome); status != "" {
		_, err = tx.Exec(
			`UPDATE targets SET status = ?, last_action = ? WHERE key = ?`,
			string(status), rec.Timestamp, rec.TargetKey,
		)
	} else {
		_, err = tx.Exec(
			`UPDATE targets SET last_action = ? WHERE key = ?`,
			rec.Timestamp, rec.TargetKey,
		)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to update target: %v", ErrStorage, err)
	}
	return nil
}

// statusAfter maps a successful action kind to the target status it implies
func statusAfter(kind ActionKind, outcome Outcome) TargetStatus {
	if outcome != OutcomeSuccess {
		return ""
	}
	switch kind {
	case KindConnectRequest:
		return StatusRequested
	case KindFollowUpMessage:
		return StatusMessaged
	default:
		return ""
	}
}

// HasActed reports whether an action of the given kind was ever executed
// against the target. The window is unbounded: a connect request sent months
// ago still suppresses a new one. Failures count too: an action that timed
// out may have landed server-side, and re-attempting risks a duplicate send.
// Capped skips do not count: the action never ran and stays eligible.
func (l *Ledger) HasActed(targetKey string, kind ActionKind) (bool, error) {
	query := `SELECT COUNT(*) FROM action_records WHERE target_key = ? AND kind = ? AND outcome IN (?, ?)`
	var count int
	err := l.db.QueryRow(query, targetKey, string(kind), string(OutcomeSuccess), string(OutcomeFailure)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check action history: %v", ErrStorage, err)
	}
	return count > 0, nil
}

// CountSince returns the number of successful actions of the given kind
// recorded at or after windowStart. This backs the rolling daily counters.
func (l *Ledger) CountSince(kind ActionKind, windowStart time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM action_records WHERE kind = ? AND outcome = ? AND recorded_at >= ?`
	var count int
	err := l.db.QueryRow(query, string(kind), string(OutcomeSuccess), windowStart).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count actions: %v", ErrStorage, err)
	}
	return count, nil
}

// TargetsByStatus returns targets in the given status, paged by limit and
// offset so campaign runs can restart from an explicit position.
func (l *Ledger) TargetsByStatus(status TargetStatus, limit, offset int) ([]*Target, error) {
	query := `SELECT key, name, first_name, headline, company, status, first_seen, COALESCE(last_action, first_seen)
		FROM targets WHERE status = ? ORDER BY first_seen ASC LIMIT ? OFFSET ?`

	rows, err := l.db.Query(query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query targets: %v", ErrStorage, err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		t := &Target{}
		var st string
		err := rows.Scan(&t.Key, &t.Name, &t.FirstName, &t.Headline, &t.Company, &st, &t.FirstSeen, &t.LastAction)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan target: %v", ErrStorage, err)
		}
		t.Status = TargetStatus(st)
		targets = append(targets, t)
	}

	return targets, rows.Err()
}

// RecordsForTarget returns the full action history for one target, newest first
func (l *Ledger) RecordsForTarget(targetKey string) ([]*ActionRecord, error) {
	query := `SELECT id, target_key, kind, outcome, COALESCE(reason, ''), recorded_at
		FROM action_records WHERE target_key = ? ORDER BY recorded_at DESC`

	rows, err := l.db.Query(query, targetKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query records: %v", ErrStorage, err)
	}
	defer rows.Close()

	var records []*ActionRecord
	for rows.Next() {
		rec := &ActionRecord{}
		var kind, outcome string
		err := rows.Scan(&rec.ID, &rec.TargetKey, &kind, &outcome, &rec.Reason, &rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan record: %v", ErrStorage, err)
		}
		rec.Kind = ActionKind(kind)
		rec.Outcome = Outcome(outcome)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// RaiseOperatorFlag persists a flag telling the operator the account needs
// human attention before any further runs
func (l *Ledger) RaiseOperatorFlag(reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		`INSERT INTO operator_flags (reason, raised_at) VALUES (?, ?)`,
		reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to raise operator flag: %v", ErrStorage, err)
	}

	l.logger.SecurityEvent("OPERATOR_FLAG_RAISED", reason)
	return nil
}

// HasOpenOperatorFlag reports whether an uncleared operator flag exists
func (l *Ledger) HasOpenOperatorFlag() (bool, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM operator_flags WHERE cleared_at IS NULL`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check operator flags: %v", ErrStorage, err)
	}
	return count > 0, nil
}

// ClearOperatorFlags marks all open flags as cleared
func (l *Ledger) ClearOperatorFlags() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`UPDATE operator_flags SET cleared_at = ? WHERE cleared_at IS NULL`, time.Now())
	if err != nil {
		return fmt.Errorf("%w: failed to clear operator flags: %v", ErrStorage, err)
	}

	l.logger.Info("Operator flags cleared")
	return nil
}
