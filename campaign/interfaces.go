package campaign

import (
	"github.com/anvitha22/linkedin-campaign-engine/checkpoint"
	"github.com/anvitha22/linkedin-campaign-engine/humanize"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
)

// Driver is the browser collaborator that executes humanized plans. The
// core never touches page markup itself beyond the PageSignal it gets back.
type Driver interface {
	Navigate(url string) error
	PerformClick(path []humanize.Point) error
	PerformType(plan []humanize.Keystroke) error
	CurrentPageSignal() (checkpoint.PageSignal, error)
}

// AuthProvider restores a lost session. It returns the classified state of
// the page it lands on so the orchestrator can tell a recovered session
// from a challenge.
type AuthProvider interface {
	Reauthenticate() (checkpoint.SessionState, error)
}

// TargetSource produces a lazy, finite sequence of campaign targets.
// Next returns io.EOF when the sequence is exhausted. Sources are
// restartable: implementations take an explicit page or offset at
// construction.
type TargetSource interface {
	Next() (*ledger.Target, error)
}
