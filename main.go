package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/thushan/pxlb/internal/app"
	"github.com/thushan/pxlb/internal/env"
	"github.com/thushan/pxlb/internal/logger"
	"github.com/thushan/pxlb/internal/version"
	"github.com/thushan/pxlb/pkg/format"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}

	opts := parseFlags()
	version.PrintVersionInfo(false, vlog)

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	// setup: graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(opts, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("pxlb has shutdown")
}

func parseFlags() app.Options {
	var opts app.Options

	flag.StringVar(&opts.ConfigPath, "c", "", "yaml config file")
	flag.StringVar(&opts.ConfigPath, "config", "", "yaml config file")
	flag.StringVar(&opts.APIHost, "host", "", "introspection API bind host override")
	flag.IntVar(&opts.APIPort, "p", 0, "introspection API port override")
	flag.IntVar(&opts.APIPort, "port", 0, "introspection API port override")
	flag.Parse()

	if opts.ConfigPath == "" {
		fmt.Fprintln(os.Stderr, "a config file is required: -c/--config <path>")
		flag.Usage()
		os.Exit(2)
	}
	return opts
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	runtime.GC()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Info("Process Memory Stats",
		"heap_alloc", format.Bytes(m.HeapAlloc),
		"heap_sys", format.Bytes(m.HeapSys),
		"heap_inuse", format.Bytes(m.HeapInuse),
		"total_alloc", format.Bytes(m.TotalAlloc),
	)

	logger.Info("Runtime Stats",
		"uptime", format.Duration(time.Since(startTime)),
		"go_version", runtime.Version(),
		"num_goroutines", runtime.NumGoroutine(),
		"num_cpu", runtime.NumCPU(),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("PXLB_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("PXLB_FILE_OUTPUT", true),
		LogDir:     env.GetEnvOrDefault("PXLB_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("PXLB_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("PXLB_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("PXLB_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("PXLB_THEME", "default"),
	}
}
