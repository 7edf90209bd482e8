// Package targets provides the target sources a campaign run iterates over.
// Sources are lazy and finite; Next returns io.EOF when exhausted. Restart
// position is fixed at construction so an interrupted run can resume.
package targets

import (
	"fmt"
	"io"

	"github.com/anvitha22/linkedin-campaign-engine/ledger"
)

// SliceSource yields a fixed list of targets, starting at offset
type SliceSource struct {
	targets []*ledger.Target
	pos     int
}

// NewSliceSource creates a source over a static target list. offset skips
// targets already handled by a previous run.
func NewSliceSource(targets []*ledger.Target, offset int) *SliceSource {
	if offset < 0 {
		offset = 0
	}
	return &SliceSource{targets: targets, pos: offset}
}

// Next returns the next target or io.EOF
func (s *SliceSource) Next() (*ledger.Target, error) {
	if s.pos >= len(s.targets) {
		return nil, io.EOF
	}
	t := s.targets[s.pos]
	s.pos++
	return t, nil
}

// LedgerSource pages through stored targets in a given status, for runs that
// act on targets discovered earlier (e.g. follow-up messages to connections)
type LedgerSource struct {
	ledger *ledger.Ledger
	status ledger.TargetStatus
	limit  int

	batch   []*ledger.Target
	pos     int
	offset  int
	yielded int
	done    bool
}

const ledgerBatchSize = 20

// NewLedgerSource creates a source over ledger targets with the given status.
// offset skips targets already handled by a previous run; limit bounds the
// total number yielded (0 means no bound).
func NewLedgerSource(l *ledger.Ledger, status ledger.TargetStatus, offset, limit int) *LedgerSource {
	if offset < 0 {
		offset = 0
	}
	return &LedgerSource{ledger: l, status: status, offset: offset, limit: limit}
}

// Next returns the next target or io.EOF
func (s *LedgerSource) Next() (*ledger.Target, error) {
	if s.limit > 0 && s.yielded >= s.limit {
		return nil, io.EOF
	}
	if s.pos >= len(s.batch) {
		if s.done {
			return nil, io.EOF
		}
		batch, err := s.ledger.TargetsByStatus(s.status, ledgerBatchSize, s.offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch targets: %w", err)
		}
		if len(batch) == 0 {
			return nil, io.EOF
		}
		if len(batch) < ledgerBatchSize {
			s.done = true
		}
		s.batch = batch
		s.pos = 0
	}
	t := s.batch[s.pos]
	s.pos++
	s.offset++
	s.yielded++
	return t, nil
}
