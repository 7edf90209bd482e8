// Package campaign composes the ledger, governor, humanizer, and checkpoint
// detector into the per-action decision/execute/record cycle and session-level
// recovery for a campaign run.
package campaign

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/anvitha22/linkedin-campaign-engine/checkpoint"
	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/governor"
	"github.com/anvitha22/linkedin-campaign-engine/humanize"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
	"github.com/anvitha22/linkedin-campaign-engine/message"
)

// RunState is the lifecycle state of a campaign run
type RunState string

// Run states
const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateHalted    RunState = "halted"
	StateFailed    RunState = "failed"
)

// Halt and failure reasons surfaced in run reports
const (
	ReasonChallengeDetected = "challenge_detected"
	ReasonSessionLost       = "session_lost"
	ReasonStorageFailure    = "storage_failure"
	ReasonCanceled          = "canceled"
	ReasonSourceFailure     = "target_source_failure"
)

// RunReport summarizes a campaign run. Halted and failed runs still carry
// the partial counts, so completed work is never silently lost.
type RunReport struct {
	State            RunState
	Attempted        int
	Succeeded        int
	Failed           int
	SkippedDuplicate int
	SkippedCapped    int
	HaltReason       string
}

// Orchestrator drives one campaign run at a time over a single browser
// session. Actions are strictly sequential: one action completes, including
// its classification and ledger write, before the next begins.
type Orchestrator struct {
	config   *config.Config
	logger   *logger.Logger
	ledger   *ledger.Ledger
	governor *governor.Governor
	planner  *humanize.Planner
	detector *checkpoint.Detector
	renderer *message.Renderer
	driver   Driver
	auth     AuthProvider

	// sleep is swapped out in tests
	sleep func(time.Duration)

	state RunState
}

// New creates an orchestrator owning the full decision pipeline
func New(
	cfg *config.Config,
	log *logger.Logger,
	led *ledger.Ledger,
	gov *governor.Governor,
	planner *humanize.Planner,
	detector *checkpoint.Detector,
	renderer *message.Renderer,
	driver Driver,
	auth AuthProvider,
) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		logger:   log.WithModule("campaign"),
		ledger:   led,
		governor: gov,
		planner:  planner,
		detector: detector,
		renderer: renderer,
		driver:   driver,
		auth:     auth,
		sleep:    time.Sleep,
		state:    StateIdle,
	}
}

// State returns the current run state
func (o *Orchestrator) State() RunState {
	return o.state
}

// Run executes a campaign of the given action kind over the target source.
// Cancellation via ctx is honored at the top of the per-target loop and
// never mid-action. The returned report is non-nil even on error.
func (o *Orchestrator) Run(ctx context.Context, kind ledger.ActionKind, source TargetSource) (*RunReport, error) {
	dryRun := o.config.Campaign.DryRun
	report := &RunReport{State: StateRunning}
	o.state = StateRunning
	reauthed := false

	o.logger.WithFields(map[string]interface{}{
		"kind":    string(kind),
		"dry_run": dryRun,
	}).Info("Campaign run starting")

	for {
		// Stop signal: checked here only, never mid-action
		select {
		case <-ctx.Done():
			return o.finish(report, StateHalted, ReasonCanceled, nil)
		default:
		}

		target, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return o.finish(report, StateFailed, ReasonSourceFailure, err)
		}

		if !dryRun {
			if err := o.ledger.SaveTarget(target); err != nil {
				return o.finish(report, StateFailed, ReasonStorageFailure, err)
			}
		}

		// 1. Duplicate suppression: skipped without a ledger write so
		// counters stay skew-free
		if kind != ledger.KindSearchVisit {
			acted, err := o.ledger.HasActed(target.Key, kind)
			if err != nil {
				return o.finish(report, StateFailed, ReasonStorageFailure, err)
			}
			if acted {
				report.SkippedDuplicate++
				o.logger.WithField("target", target.Key).Debug("Already acted on target, skipping")
				continue
			}
		}

		report.Attempted++

		// 2. Daily cap check. A deny ends the run cleanly: the cap was
		// reached, which is an expected termination, not an error.
		decision, err := o.governor.CanProceed(kind, time.Now())
		if err != nil {
			return o.finish(report, StateFailed, ReasonStorageFailure, err)
		}
		if !decision.Allowed {
			report.SkippedCapped++
			if !dryRun {
				rec := &ledger.ActionRecord{
					TargetKey: target.Key,
					Kind:      kind,
					Outcome:   ledger.OutcomeSkippedCapped,
					Reason:    "daily cap reached",
				}
				if err := o.ledger.RecordAction(rec); err != nil {
					return o.finish(report, StateFailed, ReasonStorageFailure, err)
				}
			}
			break
		}

		// 3. Timing plan
		delay := o.planner.PlanDelay(kind)

		// 4. Execute (simulated in dry runs, logged but never performed)
		outcome := ledger.OutcomeSuccess
		reason := ""
		if dryRun {
			o.logger.WithFields(map[string]interface{}{
				"target":   target.Key,
				"delay_ms": delay.Milliseconds(),
			}).Info("Dry run: action simulated")
		} else {
			o.sleep(delay)
			if err := o.execute(kind, target); err != nil {
				outcome = ledger.OutcomeFailure
				reason = err.Error()
				o.logger.WithError(err).WithField("target", target.Key).Warn("Action execution failed")
			}
		}

		// 5. Classify resulting page state
		signal, err := o.driver.CurrentPageSignal()
		if err != nil {
			// Can't see the page; assume the worst for this action but
			// keep the session alive
			outcome = ledger.OutcomeFailure
			reason = "page signal unavailable: " + err.Error()
			signal = checkpoint.PageSignal{}
		}
		state := o.detector.Classify(signal)

		if state == checkpoint.StateLoggedOut {
			outcome = ledger.OutcomeFailure
			if reason == "" {
				reason = "session logged out"
			}
		}

		// 6. Record the outcome. Partially executed actions are recorded
		// before the run halts, so a later run never re-attempts them.
		// Successes of capped kinds go through the conditional insert: the
		// cap check in step 2 races against other sessions sharing the
		// ledger, and only the write itself can hold the cap invariant.
		capFilled := false
		if !dryRun {
			rec := &ledger.ActionRecord{
				TargetKey: target.Key,
				Kind:      kind,
				Outcome:   outcome,
				Reason:    reason,
			}
			if outcome == ledger.OutcomeSuccess && decision.Cap > 0 {
				admitted, err := o.ledger.RecordSuccessIfUnderCap(rec, decision.Cap, time.Now().Add(-governor.Window))
				if err != nil {
					return o.finish(report, StateFailed, ReasonStorageFailure, err)
				}
				if !admitted {
					// Another session filled the cap while this action ran.
					// The action still happened, so it must stay visible to
					// HasActed, just not as a cap-consuming success.
					outcome = ledger.OutcomeFailure
					rec.Outcome = ledger.OutcomeFailure
					rec.Reason = "daily cap filled by a concurrent session"
					if err := o.ledger.RecordAction(rec); err != nil {
						return o.finish(report, StateFailed, ReasonStorageFailure, err)
					}
					capFilled = true
				}
			} else if err := o.ledger.RecordAction(rec); err != nil {
				return o.finish(report, StateFailed, ReasonStorageFailure, err)
			}
		}

		if outcome == ledger.OutcomeSuccess {
			report.Succeeded++
		} else {
			report.Failed++
		}

		// Session-level state transitions
		switch state {
		case checkpoint.StateChallenged:
			if !dryRun {
				if err := o.ledger.RaiseOperatorFlag(ReasonChallengeDetected); err != nil {
					o.logger.WithError(err).Error("Failed to persist operator flag")
				}
			}
			return o.finish(report, StateHalted, ReasonChallengeDetected, ErrChallengeDetected)

		case checkpoint.StateLoggedOut:
			if reauthed {
				return o.finish(report, StateFailed, ReasonSessionLost, ErrSessionLost)
			}
			reauthed = true
			recovered, err := o.auth.Reauthenticate()
			if err != nil || recovered != checkpoint.StateNormal {
				if recovered == checkpoint.StateChallenged {
					return o.finish(report, StateHalted, ReasonChallengeDetected, ErrChallengeDetected)
				}
				return o.finish(report, StateFailed, ReasonSessionLost, ErrSessionLost)
			}
			o.logger.Info("Session re-authenticated, resuming run")
		}

		// The cap is full, so the run ends cleanly like a step-2 deny
		if capFilled {
			break
		}

		// Trailing pause before the next target
		if !dryRun {
			o.sleep(o.planner.PlanDelay(kind))
		}
	}

	return o.finish(report, StateCompleted, "", nil)
}

// execute performs the browser interaction for one target
func (o *Orchestrator) execute(kind ledger.ActionKind, target *ledger.Target) error {
	if err := o.driver.Navigate(target.Key); err != nil {
		return err
	}

	if kind == ledger.KindSearchVisit {
		return nil
	}

	// Nominal viewport anchors; the driver resolves the actual element and
	// follows the path's shape
	w := float64(o.config.Browser.ViewportWidth)
	h := float64(o.config.Browser.ViewportHeight)
	center := humanize.Point{X: w / 2, Y: h / 2}
	actionRegion := humanize.Point{X: w * 0.72, Y: h * 0.34}
	confirmRegion := humanize.Point{X: w * 0.55, Y: h * 0.62}

	path := o.planner.PlanPointerPath(center, actionRegion)
	if err := o.driver.PerformClick(path); err != nil {
		return err
	}

	text, err := o.renderer.ForKind(kind, target)
	if err != nil {
		return err
	}
	if text != "" {
		plan := o.planner.PlanKeystrokeTiming(text)
		if err := o.driver.PerformType(plan); err != nil {
			return err
		}
	}

	confirm := o.planner.PlanPointerPath(actionRegion, confirmRegion)
	return o.driver.PerformClick(confirm)
}

// finish stamps the report with its terminal state and logs the summary
func (o *Orchestrator) finish(report *RunReport, state RunState, haltReason string, err error) (*RunReport, error) {
	report.State = state
	report.HaltReason = haltReason
	o.state = state

	o.logger.WithFields(map[string]interface{}{
		"state":             string(state),
		"attempted":         report.Attempted,
		"succeeded":         report.Succeeded,
		"failed":            report.Failed,
		"skipped_duplicate": report.SkippedDuplicate,
		"skipped_capped":    report.SkippedCapped,
		"halt_reason":       haltReason,
	}).Info("Campaign run finished")

	return report, err
}
