// LinkedIn Campaign Engine - Main Application
// Runs paced outreach campaigns (profile visits, connection requests,
// follow-up messages) against a persistent action ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/anvitha22/linkedin-campaign-engine/auth"
	"github.com/anvitha22/linkedin-campaign-engine/browser"
	"github.com/anvitha22/linkedin-campaign-engine/campaign"
	"github.com/anvitha22/linkedin-campaign-engine/checkpoint"
	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/governor"
	"github.com/anvitha22/linkedin-campaign-engine/humanize"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
	"github.com/anvitha22/linkedin-campaign-engine/message"
	"github.com/anvitha22/linkedin-campaign-engine/targets"
)

// Application holds all components of the campaign engine
type Application struct {
	config       *config.Config
	logger       *logger.Logger
	ledger       *ledger.Ledger
	browser      *browser.Browser
	planner      *humanize.Planner
	detector     *checkpoint.Detector
	governor     *governor.Governor
	renderer     *message.Renderer
	auth         *auth.Authenticator
	orchestrator *campaign.Orchestrator
}

// Command line flags
var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	mode       = flag.String("mode", "visit", "Campaign mode: visit, connect, message")
	query      = flag.String("query", "", "People-search query for target discovery")
	startPage  = flag.Int("start-page", 0, "Search page to resume from (overrides config)")
	maxTargets = flag.Int("max-targets", 0, "Maximum targets this run (overrides config)")
	dryRun     = flag.Bool("dry-run", false, "Dry run mode - no real actions, no ledger writes")
	clearFlags = flag.Bool("clear-flags", false, "Clear open operator flags and exit")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		fmt.Println("\nPlease ensure you have set LINKEDIN_EMAIL and LINKEDIN_PASSWORD environment variables")
		fmt.Println("or create a .env file with these values.")
		os.Exit(1)
	}

	// Flag overrides
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *dryRun {
		cfg.Campaign.DryRun = true
	}
	if *startPage > 0 {
		cfg.Campaign.StartPage = *startPage
	}
	if *maxTargets > 0 {
		cfg.Campaign.MaxTargets = *maxTargets
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputFile: cfg.Logging.OutputFile,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("LinkedIn Campaign Engine starting...")
	log.Infof("Mode: %s (dry-run: %v)", *mode, cfg.Campaign.DryRun)

	app, err := NewApplication(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize application: %v", err)
		os.Exit(1)
	}
	defer app.Close()

	if *clearFlags {
		if err := app.ledger.ClearOperatorFlags(); err != nil {
			log.Errorf("Failed to clear operator flags: %v", err)
			os.Exit(1)
		}
		log.Info("Operator flags cleared")
		return
	}

	// A standing operator flag means a prior run hit a security challenge.
	// Refuse to run until a human clears it.
	flagged, err := app.ledger.HasOpenOperatorFlag()
	if err != nil {
		log.Errorf("Failed to check operator flags: %v", err)
		os.Exit(1)
	}
	if flagged {
		log.Error("An operator flag is open from a previous run (security challenge).")
		log.Error("Resolve the challenge manually, then re-run with -clear-flags.")
		os.Exit(1)
	}

	// Cancel the run on SIGINT/SIGTERM; the orchestrator stops cleanly at
	// the next target boundary
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(app, cancel)

	report, err := app.Run(ctx, *mode, *query)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		log.Errorf("Campaign ended with error: %v", err)
		os.Exit(1)
	}

	log.Info("Campaign completed successfully")
}

// NewApplication creates and wires all components
func NewApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	led, err := ledger.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	planner := humanize.NewPlanner(&cfg.Humanize, log)
	detector := checkpoint.NewDetector(log)
	gov := governor.New(&cfg.RateLimits, led, log)

	renderer, err := message.NewRenderer(&cfg.Messaging, log)
	if err != nil {
		led.Close()
		return nil, fmt.Errorf("failed to parse message templates: %w", err)
	}

	browserMgr := browser.New(cfg, log)
	authMgr := auth.New(cfg, log, browserMgr, planner, detector)

	orchestrator := campaign.New(cfg, log, led, gov, planner, detector, renderer, browserMgr, authMgr)

	return &Application{
		config:       cfg,
		logger:       log,
		ledger:       led,
		browser:      browserMgr,
		planner:      planner,
		detector:     detector,
		governor:     gov,
		renderer:     renderer,
		auth:         authMgr,
		orchestrator: orchestrator,
	}, nil
}

// Run launches the browser, authenticates, and executes the selected campaign
func (app *Application) Run(ctx context.Context, mode, query string) (*campaign.RunReport, error) {
	kind, err := actionKind(mode)
	if err != nil {
		return nil, err
	}

	if err := app.browser.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	app.logger.Info("Authenticating...")
	if err := app.auth.Login(); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	app.logger.Info("Authentication successful")

	app.showQuotas()

	source, err := app.targetSource(kind, query)
	if err != nil {
		return nil, err
	}

	return app.orchestrator.Run(ctx, kind, source)
}

// targetSource picks the source matching the campaign kind: search discovery
// for visits and connection requests, the ledger's connected targets for
// follow-up messages
func (app *Application) targetSource(kind ledger.ActionKind, query string) (campaign.TargetSource, error) {
	switch kind {
	case ledger.KindSearchVisit, ledger.KindConnectRequest:
		if query == "" {
			return nil, fmt.Errorf("mode %q requires -query", *mode)
		}
		return targets.NewSearchSource(app.browser, app.logger, query,
			app.config.Campaign.StartPage, app.config.Campaign.MaxTargets), nil
	case ledger.KindFollowUpMessage:
		return targets.NewLedgerSource(app.ledger, ledger.StatusConnected,
			0, app.config.Campaign.MaxTargets), nil
	default:
		return nil, fmt.Errorf("no target source for kind %q", kind)
	}
}

// showQuotas logs remaining trailing-24h quota per action kind
func (app *Application) showQuotas() {
	for _, kind := range []ledger.ActionKind{
		ledger.KindSearchVisit,
		ledger.KindConnectRequest,
		ledger.KindFollowUpMessage,
	} {
		remaining, err := app.governor.Remaining(kind, time.Now())
		if err != nil {
			app.logger.WithError(err).Warn("Failed to compute remaining quota")
			return
		}
		if remaining < 0 {
			app.logger.Infof("Quota %s: unlimited", kind)
		} else {
			app.logger.Infof("Quota %s: %d remaining in trailing 24h", kind, remaining)
		}
	}
}

// Close shuts down all components
func (app *Application) Close() {
	if app.browser != nil {
		app.browser.Close()
	}
	if app.ledger != nil {
		if err := app.ledger.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close ledger")
		}
	}
}

func actionKind(mode string) (ledger.ActionKind, error) {
	switch mode {
	case "visit":
		return ledger.KindSearchVisit, nil
	case "connect":
		return ledger.KindConnectRequest, nil
	case "message":
		return ledger.KindFollowUpMessage, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want visit, connect, or message)", mode)
	}
}

// setupGracefulShutdown cancels the run context on SIGINT/SIGTERM
func setupGracefulShutdown(app *Application, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		app.logger.Infof("Received signal %v, finishing current action...", sig)
		cancel()
	}()
}

func printReport(report *campaign.RunReport) {
	fmt.Println("\n=== Campaign Report ===")
	fmt.Printf("State:              %s\n", report.State)
	fmt.Printf("Attempted:          %d\n", report.Attempted)
	fmt.Printf("Succeeded:          %d\n", report.Succeeded)
	fmt.Printf("Failed:             %d\n", report.Failed)
	fmt.Printf("Skipped (dupe):     %d\n", report.SkippedDuplicate)
	fmt.Printf("Skipped (capped):   %d\n", report.SkippedCapped)
	if report.HaltReason != "" {
		fmt.Printf("Halt reason:        %s\n", report.HaltReason)
	}
}
