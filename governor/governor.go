// Package governor enforces daily action caps. It derives rolling 24h
// counters from the action ledger instead of keeping its own state, so
// counts survive restarts and are shared across sessions.
package governor

import (
	"time"

	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// Window is the trailing period over which caps apply
const Window = 24 * time.Hour

// Counter is the slice of the ledger the governor reads
type Counter interface {
	CountSince(kind ledger.ActionKind, windowStart time.Time) (int, error)
}

// Decision is the result of a cap check. A deny is final for the
// invocation: the caller either stops or moves to the next action kind.
type Decision struct {
	Allowed bool
	Used    int
	Cap     int
}

// Governor checks candidate actions against configured daily caps
type Governor struct {
	counts Counter
	caps   map[ledger.ActionKind]int
	logger *logger.Logger
}

// New creates a governor from the configured rate limits. A cap of zero
// leaves the kind unlimited.
func New(cfg *config.RateLimitConfig, counts Counter, log *logger.Logger) *Governor {
	return &Governor{
		counts: counts,
		caps: map[ledger.ActionKind]int{
			ledger.KindConnectRequest:  cfg.DailyConnectionLimit,
			ledger.KindFollowUpMessage: cfg.DailyMessageLimit,
			ledger.KindSearchVisit:     cfg.DailySearchVisits,
		},
		logger: log.WithModule("governor"),
	}
}

// CanProceed reports whether one more action of the given kind may run now.
// The caller is expected to record the action's outcome before asking again;
// the governor itself keeps no per-call state (single-threaded caller).
func (g *Governor) CanProceed(kind ledger.ActionKind, now time.Time) (Decision, error) {
	cap, capped := g.caps[kind]
	if !capped || cap <= 0 {
		return Decision{Allowed: true}, nil
	}

	used, err := g.counts.CountSince(kind, now.Add(-Window))
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Allowed: used < cap,
		Used:    used,
		Cap:     cap,
	}

	if !decision.Allowed {
		g.logger.RateLimit(string(kind), used, cap)
	}

	return decision, nil
}

// Remaining returns how many more actions of the given kind may run in the
// current window. Unlimited kinds report -1.
func (g *Governor) Remaining(kind ledger.ActionKind, now time.Time) (int, error) {
	cap, capped := g.caps[kind]
	if !capped || cap <= 0 {
		return -1, nil
	}

	used, err := g.counts.CountSince(kind, now.Add(-Window))
	if err != nil {
		return 0, err
	}

	remaining := cap - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
