// Package browser provides browser automation setup and plan execution using
// Rod. It launches a hardened Chrome instance and implements the campaign
// driver: navigation, pointer-path clicks, keystroke-plan typing, and page
// signal capture.
package browser

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/anvitha22/linkedin-campaign-engine/checkpoint"
	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/humanize"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// markupExcerptLimit caps how much page HTML a signal carries
const markupExcerptLimit = 256 << 10

// Browser wraps the Rod browser and executes humanized interaction plans
type Browser struct {
	config  *config.Config
	logger  *logger.Logger
	browser *rod.Browser
	page    *rod.Page
	rand    *rand.Rand
}

// New creates a new browser instance
func New(cfg *config.Config, log *logger.Logger) *Browser {
	return &Browser{
		config: cfg,
		logger: log.WithModule("browser"),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Launch initializes and launches the browser with anti-automation hardening
func (b *Browser) Launch() error {
	b.logger.Info("Launching browser")

	if b.config.Browser.UserDataDir != "" {
		absPath, err := filepath.Abs(b.config.Browser.UserDataDir)
		if err != nil {
			return fmt.Errorf("failed to resolve user data dir: %w", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("failed to create user data directory: %w", err)
		}
		b.config.Browser.UserDataDir = absPath
	}

	l := launcher.New().
		Headless(b.config.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("disable-dev-shm-usage").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-extensions").
		Set("disable-popup-blocking")

	if b.config.Browser.UserDataDir != "" {
		l = l.UserDataDir(b.config.Browser.UserDataDir)
	}

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.browser = rod.New().ControlURL(url)
	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	b.page = page

	width, height := b.config.Browser.ViewportWidth, b.config.Browser.ViewportHeight
	if err := b.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if ua := b.randomUserAgent(); ua != "" {
		if err := b.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			b.logger.WithError(err).Warn("Failed to set user agent")
		}
	}

	// Masks are re-injected on every navigation
	if _, err := b.page.EvalOnNewDocument(stealthScript); err != nil {
		b.logger.WithError(err).Warn("Failed to install fingerprint masks")
	}

	b.logger.WithFields(map[string]interface{}{
		"headless": b.config.Browser.Headless,
		"viewport": fmt.Sprintf("%dx%d", width, height),
	}).Info("Browser launched")

	return nil
}

// Page returns the active page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Close shuts down the browser
func (b *Browser) Close() {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to close browser")
		}
	}
	b.logger.Info("Browser closed")
}

// ==============================================================================
// Campaign driver implementation
// ==============================================================================

// Navigate loads a URL and waits for the page to settle
func (b *Browser) Navigate(url string) error {
	b.logger.WithField("url", url).Debug("Navigating")

	if err := b.page.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := b.page.Timeout(b.config.GetTimeout()).WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}

	return nil
}

// PerformClick walks the mouse along a planned waypoint path and clicks at
// the final position. The path's curvature and jitter come from the plan;
// only the per-waypoint pacing is the driver's.
func (b *Browser) PerformClick(path []humanize.Point) error {
	if len(path) == 0 {
		return fmt.Errorf("empty pointer path")
	}

	for _, pt := range path {
		if err := b.page.Mouse.MoveLinear(proto.NewPoint(pt.X, pt.Y), 1); err != nil {
			return fmt.Errorf("pointer move failed: %w", err)
		}
		time.Sleep(time.Duration(5+b.rand.Intn(12)) * time.Millisecond)
	}

	if err := b.page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	return nil
}

// PerformType executes a keystroke plan against the focused element,
// honoring the per-character delays
func (b *Browser) PerformType(plan []humanize.Keystroke) error {
	for _, ks := range plan {
		time.Sleep(ks.Delay)
		if err := b.page.InsertText(string(ks.Rune)); err != nil {
			return fmt.Errorf("keystroke failed: %w", err)
		}
	}
	return nil
}

// CurrentPageSignal captures the observable page state for classification
func (b *Browser) CurrentPageSignal() (checkpoint.PageSignal, error) {
	info, err := b.page.Info()
	if err != nil {
		return checkpoint.PageSignal{}, fmt.Errorf("failed to read page info: %w", err)
	}

	html, err := b.page.HTML()
	if err != nil {
		return checkpoint.PageSignal{}, fmt.Errorf("failed to read page markup: %w", err)
	}
	if len(html) > markupExcerptLimit {
		html = html[:markupExcerptLimit]
	}

	return checkpoint.PageSignal{
		URL:           info.URL,
		Markup:        html,
		HasLoginForm:  b.elementExists("#username, form.login__form"),
		HasCaptchaBox: b.elementExists("iframe[src*='captcha'], #captcha, .captcha-container, #arkose-challenge"),
	}, nil
}

// elementExists probes for a selector with a short timeout
func (b *Browser) elementExists(selector string) bool {
	el, err := b.page.Timeout(500 * time.Millisecond).Element(selector)
	return err == nil && el != nil
}

// stealthScript overrides the properties automation detectors probe
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined
	});
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;

	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' }
		]
	});

	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-US', 'en']
	});

	window.chrome = {
		runtime: {},
		loadTimes: function() {},
		csi: function() {},
		app: {}
	};
`

// randomUserAgent returns a realistic user agent string
func (b *Browser) randomUserAgent() string {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	}
	return userAgents[b.rand.Intn(len(userAgents))]
}

// profileLinkPrefix filters anchors down to profile URLs
const profileLinkPrefix = "/in/"

// ExtractProfileLinks pulls profile URLs and display names from the current
// search results page. This is collaborator-side parsing: the campaign core
// only ever sees the resulting targets.
func (b *Browser) ExtractProfileLinks() ([]ProfileLink, error) {
	elements, err := b.page.Timeout(b.config.GetTimeout()).Elements("a[href*='/in/']")
	if err != nil {
		return nil, fmt.Errorf("failed to find profile links: %w", err)
	}

	seen := make(map[string]bool)
	var links []ProfileLink
	for _, el := range elements {
		href, err := el.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		url := normalizeProfileURL(*href)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		name := ""
		if text, err := el.Text(); err == nil {
			name = strings.TrimSpace(strings.Split(text, "\n")[0])
		}

		links = append(links, ProfileLink{URL: url, Name: name})
	}

	return links, nil
}

// ProfileLink is a profile URL with its display name as seen in results
type ProfileLink struct {
	URL  string
	Name string
}

// normalizeProfileURL strips query noise and fragments from a profile href
func normalizeProfileURL(href string) string {
	if !strings.Contains(href, profileLinkPrefix) {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if strings.HasPrefix(href, "/") {
		href = "https://www.linkedin.com" + href
	}
	return strings.TrimSuffix(href, "/")
}
