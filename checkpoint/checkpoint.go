// Package checkpoint classifies browser session health from observable page
// state. Classification is pure: the browser layer supplies the signal, the
// orchestrator consumes the resulting state.
package checkpoint

import (
	"strings"

	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// SessionState is the classified health of the current browser session
type SessionState string

// Session states. Challenged covers verification, captcha, and rate-limit
// interstitials: anything that needs a human before automation continues.
const (
	StateNormal     SessionState = "normal"
	StateChallenged SessionState = "challenged"
	StateLoggedOut  SessionState = "logged_out"
)

// PageSignal is the raw observable state the browser layer exposes.
// The core never parses markup beyond what this carries.
type PageSignal struct {
	URL           string
	Markup        string
	HasLoginForm  bool
	HasCaptchaBox bool
}

// URL fragments that indicate a security interstitial
var challengeURLPatterns = []string{
	"/checkpoint/",
	"/challenge/",
	"/security-verification",
	"/uas/",
	"/add-phone",
	"/add-email",
}

// URL fragments that indicate the session is gone
var loggedOutURLPatterns = []string{
	"/login",
	"/authwall",
	"/signup",
	"/m/logout",
}

// Markup keywords that indicate a challenge page
var challengeKeywords = []string{
	"captcha",
	"verification code",
	"security verification",
	"unusual activity",
	"confirm it's you",
	"are you a robot",
	"temporarily restricted",
}

// Detector classifies page signals into session states
type Detector struct {
	logger *logger.Logger
}

// NewDetector creates a checkpoint detector
func NewDetector(log *logger.Logger) *Detector {
	return &Detector{logger: log.WithModule("checkpoint")}
}

// Classify maps a page signal to a session state. Challenge indicators win
// over logged-out ones: a challenge page often embeds a sign-in form, and
// treating it as a plain logout would trigger a re-auth attempt against an
// account that needs human attention.
func (d *Detector) Classify(sig PageSignal) SessionState {
	state := classify(sig)

	switch state {
	case StateChallenged:
		d.logger.SecurityEvent("CHALLENGE_PAGE", sig.URL)
	case StateLoggedOut:
		d.logger.SecurityEvent("SESSION_LOGGED_OUT", sig.URL)
	}

	return state
}

// classify is the pure classification over the signal
func classify(sig PageSignal) SessionState {
	if sig.HasCaptchaBox {
		return StateChallenged
	}

	lowerURL := strings.ToLower(sig.URL)
	for _, pattern := range challengeURLPatterns {
		if strings.Contains(lowerURL, pattern) {
			return StateChallenged
		}
	}

	lowerMarkup := strings.ToLower(sig.Markup)
	for _, keyword := range challengeKeywords {
		if strings.Contains(lowerMarkup, keyword) {
			return StateChallenged
		}
	}

	for _, pattern := range loggedOutURLPatterns {
		if strings.Contains(lowerURL, pattern) {
			return StateLoggedOut
		}
	}
	if sig.HasLoginForm {
		return StateLoggedOut
	}

	return StateNormal
}
