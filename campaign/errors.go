package campaign

import "errors"

// Session-level failures. These terminate the run. Per-target execution
// failures do not: they are recorded and the run moves on.
var (
	// ErrChallengeDetected means a verification/captcha/rate-limit page
	// appeared. The run halts with no auto-retry: automated retry against
	// a challenge risks account suspension.
	ErrChallengeDetected = errors.New("security challenge detected")

	// ErrSessionLost means the session could not be recovered after the
	// single permitted re-authentication attempt.
	ErrSessionLost = errors.New("browser session lost")
)
