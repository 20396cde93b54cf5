// Command assistant runs the personal assistant agent: a recurring
// email/calendar monitor with AI importance scoring, conflict detection,
// voice/console interaction, and a web dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"assistant/pkg/agent"
	"assistant/pkg/config"
	"assistant/pkg/conflict"
	"assistant/pkg/executor"
	"assistant/pkg/interaction"
	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/oracle"
	"assistant/pkg/persistence"
	"assistant/pkg/scoring"
	"assistant/pkg/source"
	"assistant/pkg/state"
	"assistant/pkg/version"
	"assistant/pkg/voice"
	"assistant/pkg/webui"
)

func main() {
	var (
		configPath  = flag.String("config", "config.json", "path to config file")
		dataDir     = flag.String("datadir", ".", "directory for the database and checkpoint files")
		demoMode    = flag.Bool("demo", false, "run against the built-in demo scenario")
		noWeb       = flag.Bool("noweb", false, "disable the web dashboard")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("assistant %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	logger := logx.NewLogger("main")
	if err := run(logger, *configPath, *dataDir, *demoMode, *noWeb); err != nil {
		logger.Error("Fatal: %v", err)
		os.Exit(1)
	}
}

func run(logger *logx.Logger, configPath, dataDir string, demoMode, noWeb bool) error {
	if err := config.LoadConfig(configPath); err != nil {
		return err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	if demoMode {
		cfg.Demo = true
	}

	apiKey, err := cfg.OracleAPIKey()
	if err != nil {
		logger.Warn("Oracle unavailable, scoring falls back to keyword rules: %v", err)
	}
	var client oracle.Client
	if apiKey != "" || cfg.Oracle.Provider == config.ProviderOllama || cfg.Oracle.Provider == config.ProviderMock {
		client, err = oracle.NewClient(cfg.Oracle, apiKey)
		if err != nil {
			return fmt.Errorf("failed to create oracle client: %w", err)
		}
	}

	emails, calendar, sender := buildSources(logger, cfg.Demo)

	dbPath := cfg.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(dataDir, dbPath)
	}
	if err := persistence.Initialize(dbPath); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			logger.Warn("Failed to close database: %v", err)
		}
	}()

	checkpoints, err := state.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	channel := buildChannel(logger, cfg.Voice)
	interactions := interaction.NewManager(
		channel,
		interaction.NewInterpreter(client),
		time.Duration(cfg.Agent.ResponseWindow),
	)

	driver := agent.NewDriver(cfg.Agent, agent.Collaborators{
		Emails:       emails,
		Calendar:     calendar,
		Engine:       scoring.NewEngine(client, cfg.Agent.ScoringWorkers),
		Detector:     conflict.NewDetector(time.Duration(cfg.Agent.TravelBuffer)),
		Interactions: interactions,
		Executor:     executor.NewExecutor(calendar, sender, cfg.Agent.DraftInsteadOfSend),
		Checkpoints:  checkpoints,
		History:      persistence.Ops(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !noWeb {
		server := webui.NewServer(driver, persistence.Ops())
		if cfg.Web.PrometheusURL != "" {
			usage, err := metrics.NewQueryService(cfg.Web.PrometheusURL)
			if err != nil {
				return fmt.Errorf("failed to create usage query service: %w", err)
			}
			server.SetUsageService(usage)
		}
		if err := server.StartServer(ctx, cfg.Web.Addr); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
	}

	if err := driver.Start(); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received %s, shutting down", sig)

	driver.Stop()
	cancel()
	return nil
}

// buildSources returns the email/calendar collaborators. Real provider
// integrations plug in behind the source interfaces; until one is
// configured, both modes run the simulated scenario.
func buildSources(logger *logx.Logger, demo bool) (source.EmailSource, source.CalendarSource, source.EmailSender) {
	if !demo {
		logger.Warn("No external providers configured; using simulated sources")
	}
	sim := source.NewDemoSource(time.Now())
	return sim, sim, sim
}

// buildChannel picks voice with console fallback when a gateway is
// configured, console alone otherwise.
func buildChannel(logger *logx.Logger, cfg config.VoiceConfig) interaction.Channel {
	console := interaction.NewConsoleChannel()
	if cfg.GatewayURL == "" {
		logger.Info("No voice gateway configured, using console channel")
		return console
	}
	logger.Info("Voice gateway at %s with console fallback", cfg.GatewayURL)
	gateway := voice.NewGatewayChannel(cfg.GatewayURL, time.Duration(cfg.DialTimeout))
	return interaction.NewFallbackChannel(gateway, console)
}
