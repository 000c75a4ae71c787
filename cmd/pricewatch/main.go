package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/app"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths // Multiple -config flags supported
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	runOnce      = flag.Bool("once", false, "Run one reconciliation in the foreground and exit")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("PriceWatch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("pricewatch.toml"); err == nil {
			configFiles = append(configFiles, "pricewatch.toml")
		} else if _, err := os.Stat("deployments/local/pricewatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/pricewatch.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err == nil {
		common.ApplyFlagOverrides(config, finalPort, *serverHost)
		err = config.Validate()
	}
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *runOnce {
		// Foreground runs never start the scheduler
		config.Scheduler.Schedule = ""
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	logger.Debug().
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("badger_path", config.Storage.Badger.Path).
		Str("schedule", config.Scheduler.Schedule).
		Msg("Resolved configuration (sanitized)")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	if *runOnce {
		code := runForeground(application, os.Stdout)
		shutdown(application, logger)
		application.Close()
		os.Exit(code)
	}

	srv := server.New(application)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				crashPath := common.WriteCrashFile(r, common.GetStackTrace())
				logger.Error().Str("panic", fmt.Sprintf("%v", r)).Str("crash_file", crashPath).Msg("Server goroutine panicked")
				os.Exit(1)
			}
		}()

		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("Server failed to start")
			os.Exit(1)
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	shutdown(application, logger)
	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close application")
	}

	logger.Info().Msg("Server stopped")
}

// shutdown cancels any active run and waits for it to settle
func shutdown(application *app.App, logger arbor.ILogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Application shutdown incomplete")
	}
}
