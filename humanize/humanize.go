// Package humanize produces randomized, distribution-shaped timing and
// motion plans for single atomic interactions. Planners are pure: they
// return plans, never side effects. Executing a plan against the real
// browser is the orchestrator's job.
package humanize

import (
	"math"
	"math/rand"
	"time"

	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// Point represents a 2D viewport coordinate
type Point struct {
	X, Y float64
}

// Keystroke is one character of a typing plan with the delay to wait
// before pressing it
type Keystroke struct {
	Rune  rune
	Delay time.Duration
}

// Planner generates timing and motion plans from configured bounds plus a
// randomness source. No plan is ever fixed or repeatable across calls.
type Planner struct {
	config *config.HumanizeConfig
	logger *logger.Logger
	rand   *rand.Rand
}

// NewPlanner creates a planner seeded from the wall clock
func NewPlanner(cfg *config.HumanizeConfig, log *logger.Logger) *Planner {
	return NewPlannerWithSource(cfg, log, rand.NewSource(time.Now().UnixNano()))
}

// NewPlannerWithSource creates a planner with an explicit randomness source,
// which tests use to pin the distribution
func NewPlannerWithSource(cfg *config.HumanizeConfig, log *logger.Logger, src rand.Source) *Planner {
	return &Planner{
		config: cfg,
		logger: log.WithModule("humanize"),
		rand:   rand.New(src),
	}
}

// ==============================================================================
// Delay plans
// ==============================================================================

// PlanDelay returns the pause to take before an action of the given kind.
// Delays draw uniformly from [min_delay_seconds, max_delay_seconds]; search
// visits scale the whole range down since browsing moves faster than
// composing a note.
func (p *Planner) PlanDelay(kind ledger.ActionKind) time.Duration {
	min := p.config.MinDelaySeconds
	max := p.config.MaxDelaySeconds

	if kind == ledger.KindSearchVisit && p.config.SearchDelayScale > 0 {
		min *= p.config.SearchDelayScale
		max *= p.config.SearchDelayScale
	}

	seconds := min + p.rand.Float64()*(max-min)
	d := time.Duration(seconds * float64(time.Second))

	p.logger.HumanizePlan("delay", map[string]interface{}{
		"kind":        string(kind),
		"duration_ms": d.Milliseconds(),
	})

	return d
}

// ==============================================================================
// Pointer paths
// ==============================================================================

// PlanPointerPath returns a multi-waypoint curve from one point to another.
// Paths follow a cubic Bézier with randomized control points and small
// per-waypoint jitter, optionally overshooting the target and correcting
// back. Straight lines are a detection signature.
func (p *Planner) PlanPointerPath(from, to Point) []Point {
	distance := math.Hypot(to.X-from.X, to.Y-from.Y)
	numSteps := int(distance/10) + 10 // more waypoints for longer moves

	offsetRange := distance * 0.3
	ctrl1 := Point{
		X: from.X + (to.X-from.X)*0.25 + (p.rand.Float64()-0.5)*offsetRange,
		Y: from.Y + (to.Y-from.Y)*0.25 + (p.rand.Float64()-0.5)*offsetRange,
	}
	ctrl2 := Point{
		X: from.X + (to.X-from.X)*0.75 + (p.rand.Float64()-0.5)*offsetRange,
		Y: from.Y + (to.Y-from.Y)*0.75 + (p.rand.Float64()-0.5)*offsetRange,
	}

	points := make([]Point, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		pt := cubicBezier(t, from, ctrl1, ctrl2, to)

		// Jitter intermediate waypoints, keep the endpoints honest
		if i > 0 && i < numSteps-1 && p.config.PointerJitterPx > 0 {
			pt.X += (p.rand.Float64() - 0.5) * 2 * p.config.PointerJitterPx
			pt.Y += (p.rand.Float64() - 0.5) * 2 * p.config.PointerJitterPx
		}
		points[i] = pt
	}

	if p.config.PointerOvershoot && p.rand.Float64() < 0.3 {
		points = p.addOvershoot(points, to)
	}

	p.logger.HumanizePlan("pointer_path", map[string]interface{}{
		"waypoints": len(points),
		"distance":  distance,
	})

	return points
}

// cubicBezier calculates a point on a cubic Bézier curve
func cubicBezier(t float64, p0, p1, p2, p3 Point) Point {
	u := 1 - t
	tt := t * t
	uu := u * u
	uuu := uu * u
	ttt := tt * t

	return Point{
		X: uuu*p0.X + 3*uu*t*p1.X + 3*u*tt*p2.X + ttt*p3.X,
		Y: uuu*p0.Y + 3*uu*t*p1.Y + 3*u*tt*p2.Y + ttt*p3.Y,
	}
}

// addOvershoot extends the path a few pixels past the target and corrects back
func (p *Planner) addOvershoot(points []Point, target Point) []Point {
	overshoot := Point{
		X: target.X + (p.rand.Float64()*10+5)*p.randomSign(),
		Y: target.Y + (p.rand.Float64()*10+5)*p.randomSign(),
	}
	points = append(points, overshoot)

	correctionSteps := 3 + p.rand.Intn(3)
	for i := 0; i < correctionSteps; i++ {
		t := float64(i+1) / float64(correctionSteps)
		points = append(points, Point{
			X: overshoot.X + (target.X-overshoot.X)*t,
			Y: overshoot.Y + (target.Y-overshoot.Y)*t,
		})
	}

	return points
}

func (p *Planner) randomSign() float64 {
	if p.rand.Float64() < 0.5 {
		return -1
	}
	return 1
}

// ==============================================================================
// Keystroke timing
// ==============================================================================

// PlanKeystrokeTiming returns per-character delays for typing the given
// text. Delays vary per keystroke within the configured bounds, with
// occasional longer pauses to emulate thinking or re-reading.
func (p *Planner) PlanKeystrokeTiming(text string) []Keystroke {
	runes := []rune(text)
	plan := make([]Keystroke, len(runes))

	minMs := p.config.TypingDelayMinMs
	maxMs := p.config.TypingDelayMaxMs

	for i, r := range runes {
		delayMs := minMs
		if maxMs > minMs {
			delayMs += p.rand.Intn(maxMs - minMs + 1)
		}

		if p.rand.Float64() < p.config.TypingPauseChance {
			delayMs += 200 + p.rand.Intn(400)
		}

		plan[i] = Keystroke{
			Rune:  r,
			Delay: time.Duration(delayMs) * time.Millisecond,
		}
	}

	p.logger.HumanizePlan("keystrokes", map[string]interface{}{
		"length": len(runes),
	})

	return plan
}
