// Package auth handles account authentication and session recovery.
// It restores sessions from saved cookies when possible and falls back to a
// typed login, classifying the resulting page state for the orchestrator.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/anvitha22/linkedin-campaign-engine/browser"
	"github.com/anvitha22/linkedin-campaign-engine/checkpoint"
	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/humanize"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// Common site URLs
const (
	BaseURL  = "https://www.linkedin.com"
	LoginURL = "https://www.linkedin.com/login"
	FeedURL  = "https://www.linkedin.com/feed/"
)

// ErrLoginFailed is returned when credentials are rejected or the login
// flow lands somewhere unrecognized
var ErrLoginFailed = errors.New("login failed")

// Authenticator logs in and recovers lost sessions
type Authenticator struct {
	config   *config.Config
	logger   *logger.Logger
	browser  *browser.Browser
	planner  *humanize.Planner
	detector *checkpoint.Detector
	loggedIn bool
}

// New creates an authenticator
func New(cfg *config.Config, log *logger.Logger, b *browser.Browser, planner *humanize.Planner, detector *checkpoint.Detector) *Authenticator {
	return &Authenticator{
		config:   cfg,
		logger:   log.WithModule("auth"),
		browser:  b,
		planner:  planner,
		detector: detector,
	}
}

// Login establishes an authenticated session, preferring saved cookies over
// a fresh typed login
func (a *Authenticator) Login() error {
	a.logger.Info("Starting login")

	if a.tryExistingSession() {
		a.logger.Info("Restored existing session from cookies")
		a.loggedIn = true
		return nil
	}

	state, err := a.typedLogin()
	if err != nil {
		return err
	}

	switch state {
	case checkpoint.StateNormal:
		a.loggedIn = true
		if err := a.saveCookies(); err != nil {
			a.logger.WithError(err).Warn("Failed to save session cookies")
		}
		return nil
	case checkpoint.StateChallenged:
		return fmt.Errorf("%w: security challenge during login", ErrLoginFailed)
	default:
		return ErrLoginFailed
	}
}

// Reauthenticate attempts a single session recovery and reports the
// classified state of the page it ends on
func (a *Authenticator) Reauthenticate() (checkpoint.SessionState, error) {
	a.logger.Info("Re-authenticating")
	a.loggedIn = false

	if a.tryExistingSession() {
		a.loggedIn = true
		return checkpoint.StateNormal, nil
	}

	state, err := a.typedLogin()
	if err != nil {
		return state, err
	}
	if state == checkpoint.StateNormal {
		a.loggedIn = true
		if err := a.saveCookies(); err != nil {
			a.logger.WithError(err).Warn("Failed to save session cookies")
		}
	}
	return state, nil
}

// typedLogin performs a credentialed login with humanized typing
func (a *Authenticator) typedLogin() (checkpoint.SessionState, error) {
	page := a.browser.Page()

	if err := a.browser.Navigate(LoginURL); err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("failed to open login page: %w", err)
	}

	emailField, err := page.Timeout(10 * time.Second).Element("#username")
	if err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("email field not found: %w", err)
	}
	if err := emailField.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("failed to focus email field: %w", err)
	}
	if err := a.typePlanned(a.config.LinkedIn.Email); err != nil {
		return checkpoint.StateLoggedOut, err
	}

	passwordField, err := page.Timeout(5 * time.Second).Element("#password")
	if err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("password field not found: %w", err)
	}
	if err := passwordField.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("failed to focus password field: %w", err)
	}
	if err := a.typePlanned(a.config.LinkedIn.Password); err != nil {
		return checkpoint.StateLoggedOut, err
	}

	submit, err := page.Timeout(5 * time.Second).Element(`button[type="submit"]`)
	if err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("submit button not found: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("failed to submit login: %w", err)
	}

	// Login processing needs a beat before the redirect settles
	time.Sleep(3 * time.Second)

	signal, err := a.browser.CurrentPageSignal()
	if err != nil {
		return checkpoint.StateLoggedOut, fmt.Errorf("failed to read post-login state: %w", err)
	}

	// The login flow redirects to the feed on success; anything that still
	// smells like the login page means rejected credentials
	if strings.Contains(signal.URL, "/login") {
		return checkpoint.StateLoggedOut, ErrLoginFailed
	}

	return a.detector.Classify(signal), nil
}

// typePlanned types text through the keystroke plan so login typing looks
// like campaign typing
func (a *Authenticator) typePlanned(text string) error {
	plan := a.planner.PlanKeystrokeTiming(text)
	return a.browser.PerformType(plan)
}

// tryExistingSession restores saved cookies and probes the feed
func (a *Authenticator) tryExistingSession() bool {
	cookies, err := loadCookies(a.config.Storage.CookiesPath)
	if err != nil {
		a.logger.WithError(err).Debug("Failed to load saved cookies")
		return false
	}
	if len(cookies) == 0 {
		return false
	}

	page := a.browser.Page()

	if err := a.browser.Navigate(BaseURL); err != nil {
		return false
	}

	now := time.Now().Unix()
	for _, cookie := range cookies {
		if cookie.Expires != 0 && cookie.Expires <= now {
			continue
		}
		err := page.SetCookies([]*proto.NetworkCookieParam{{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  proto.TimeSinceEpoch(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}})
		if err != nil {
			a.logger.WithError(err).Debug("Failed to set cookie")
		}
	}

	if err := a.browser.Navigate(FeedURL); err != nil {
		return false
	}

	signal, err := a.browser.CurrentPageSignal()
	if err != nil {
		return false
	}
	return a.detector.Classify(signal) == checkpoint.StateNormal
}

// saveCookies persists the current session cookies for the next run
func (a *Authenticator) saveCookies() error {
	page := a.browser.Page()

	cookies, err := page.Cookies([]string{BaseURL})
	if err != nil {
		return fmt.Errorf("failed to get cookies: %w", err)
	}

	stored := make([]*SessionCookie, len(cookies))
	for i, cookie := range cookies {
		stored[i] = &SessionCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  int64(cookie.Expires),
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}
	}

	if err := storeCookies(a.config.Storage.CookiesPath, stored); err != nil {
		return err
	}

	a.logger.Infof("Saved %d session cookies", len(stored))
	return nil
}
