package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/advisordesk/advisord/agent"
	"github.com/advisordesk/advisord/config"
	"github.com/advisordesk/advisord/conversations"
	"github.com/advisordesk/advisord/dashboard"
	"github.com/advisordesk/advisord/es"
	"github.com/advisordesk/advisord/llm"
	advisorlogger "github.com/advisordesk/advisord/logger"
	"github.com/advisordesk/advisord/mcp"
	"github.com/advisordesk/advisord/migrations"
	"github.com/advisordesk/advisord/runtime"
	"github.com/advisordesk/advisord/server"
	"github.com/advisordesk/advisord/sessions"
	"github.com/advisordesk/advisord/settings"
	"github.com/advisordesk/advisord/tools"
)

const defaultListen = ":8000"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen  = flag.String("listen", "", "HTTP listen address (overrides config)")
		logFile = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty  = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		dbPath  = flag.String("db", "", "Path to SQLite conversation log (overrides config)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := advisorlogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	configPath := config.GetServerConfigPath()
	firstRun := false
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		firstRun = true
	}
	appConfig, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}
	logger.Info().Str("path", configPath).Msg("Loaded server configuration")

	// On first run, persist the effective defaults so the operator has a
	// config file to edit.
	if firstRun {
		if err := config.SaveServerConfig(appConfig, configPath); err != nil {
			logger.Warn().Str("path", configPath).Err(err).Msg("Could not write starter config file")
		} else {
			logger.Info().Str("path", configPath).Msg("Wrote starter config file")
		}
	}

	address := appConfig.Server.Listen
	if *listen != "" {
		address = *listen
	}
	if address == "" {
		address = defaultListen
	}
	databasePath := appConfig.DatabasePath
	if *dbPath != "" {
		databasePath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------------------
	// 1. Settings document + logging level
	// ---------------------------

	settingsStore, err := settings.NewStore(appConfig.SettingsPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if level := settingsStore.LogLevel(); level != "" {
		if err := advisorlogger.SetLevel(level); err != nil {
			logger.Warn().Str("level", level).Err(err).Msg("Ignoring invalid persisted log level")
		}
	}

	// ---------------------------
	// 2. Elasticsearch + built-in local tool server
	// ---------------------------

	esClient, err := es.NewClient(appConfig.Elasticsearch, logger)
	if err != nil {
		return fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	registry := tools.NewRegistry(logger)
	registry.RegisterFinancialTools(esClient)

	manager := mcp.NewManager(settingsStore, logger)
	manager.AttachLocal(tools.NewLocalClient(registry, logger))

	// ---------------------------
	// 3. Conversation log (SQLite)
	// ---------------------------

	logger.Info().Str("path", databasePath).Msg("Opening conversation log")
	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, "./migrations/sql", logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	transcript := conversations.NewStore(db)

	// ---------------------------
	// 4. LLM gateway + chat orchestrator
	// ---------------------------

	providers := llm.NewProviderRegistry(config.LoadProviderConfig(appConfig), appConfig.LLMProviders)
	gateway := agent.NewGateway(providers, logger)

	sessionStore := sessions.NewMemoryStore(sessions.DefaultMaxSessions, sessions.DefaultIdleTimeout, logger)

	orchestratorOpts := []agent.Option{agent.WithTranscript(transcript)}
	if appConfig.Chat.SystemPrompt != "" {
		orchestratorOpts = append(orchestratorOpts, agent.WithSystemPrompt(appConfig.Chat.SystemPrompt))
	}
	if appConfig.Chat.MaxTurns > 0 {
		orchestratorOpts = append(orchestratorOpts, agent.WithMaxTurns(appConfig.Chat.MaxTurns))
	}
	if appConfig.Chat.Timeout > 0 {
		orchestratorOpts = append(orchestratorOpts, agent.WithCallTimeout(time.Duration(appConfig.Chat.Timeout)*time.Second))
	}
	orchestrator := agent.NewOrchestrator(manager, gateway, sessionStore, logger, orchestratorOpts...)

	// ---------------------------
	// 5. Background refresher
	// ---------------------------

	if !appConfig.Refresh.Disabled {
		refresher := runtime.NewRefresher(manager, sessionStore, appConfig.Refresh.Schedule, logger)
		if err := refresher.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Info().Msg("Background refresher is disabled")
	}

	// ---------------------------
	// 6. HTTP API
	// ---------------------------

	srv := server.New(server.Config{
		Data:         esClient,
		Manager:      manager,
		Settings:     settingsStore,
		Orchestrator: orchestrator,
		Sessions:     sessionStore,
		Transcript:   transcript,
		MainPage:     dashboard.NewMainPage(settingsStore, manager, logger),
		Alerts:       dashboard.NewAlerts(settingsStore, manager, esClient, logger),
		AccountNews:  dashboard.NewAccountNews(settingsStore, manager, esClient, logger),
		ActionItems:  dashboard.NewActionItems(settingsStore, manager, esClient, logger),
		Emails:       dashboard.NewEmailDrafter(settingsStore, manager, esClient, gateway, logger),
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(address)
	}()

	logger.Info().Str("address", address).Msg("advisord started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
