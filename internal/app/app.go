// Package app wires configuration, the proxy registry, the router, the
// telemetry sink and one listener per configured port into a single
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/thushan/pxlb/internal/adapter/balancer"
	"github.com/thushan/pxlb/internal/adapter/registry"
	"github.com/thushan/pxlb/internal/adapter/router"
	"github.com/thushan/pxlb/internal/adapter/stats"
	"github.com/thushan/pxlb/internal/adapter/telemetry"
	"github.com/thushan/pxlb/internal/api"
	"github.com/thushan/pxlb/internal/config"
	"github.com/thushan/pxlb/internal/core/ports"
	"github.com/thushan/pxlb/internal/logger"
	"github.com/thushan/pxlb/internal/server"
)

// Options carries the CLI inputs into the application.
type Options struct {
	ConfigPath string
	APIHost    string // overrides Server.Host for the API bind when set
	APIPort    int    // overrides Server.API_Port when set
}

type Application struct {
	opts      Options
	cfg       *config.Config
	logger    *logger.StyledLogger
	registry  *registry.Registry
	router    *router.Router
	sink      ports.TelemetrySink
	collector ports.StatsCollector
	api       *api.Server
	listeners []*server.Listener
}

// New loads configuration and builds every component; nothing is bound
// until Start.
func New(opts Options, log *logger.StyledLogger) (*Application, error) {
	a := &Application{
		opts:     opts,
		logger:   log,
		registry: registry.New(),
	}

	cfg, err := config.Load(opts.ConfigPath, a.reloadRules)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	selector, err := balancer.NewSelector(cfg.Server.Balancer)
	if err != nil {
		return nil, err
	}
	a.router = router.New(selector, log)

	pools, rules, err := cfg.Materialise()
	if err != nil {
		return nil, err
	}
	a.registry.Replace(pools, rules)
	a.router.Load(pools, rules)

	if cfg.Server.LogRequests {
		sink, serr := telemetry.NewSqliteSink(cfg.Server.DBPath, log)
		if serr != nil {
			return nil, fmt.Errorf("open telemetry store: %w", serr)
		}
		a.sink = sink
	} else {
		a.sink = telemetry.NewLogSink(log)
	}

	a.collector = stats.NewCollector(log)

	apiHost := cfg.Server.Host
	if opts.APIHost != "" {
		apiHost = opts.APIHost
	}
	apiPort := cfg.Server.APIPort
	if opts.APIPort != 0 {
		apiPort = opts.APIPort
	}
	a.api = api.New(apiHost, apiPort, a.registry, a.sink, a.collector, log)

	for _, port := range a.router.Ports() {
		a.listeners = append(a.listeners,
			server.NewListener(cfg.Server.Host, port, cfg.Server.Timeout,
				a.router, a.sink, a.collector, log))
	}

	log.InfoWithCount("Loaded upstream proxies", a.registry.Len(),
		"pools", len(pools), "listeners", len(a.listeners))
	return a, nil
}

// Start binds the API and every listener.
func (a *Application) Start(ctx context.Context) error {
	a.api.Start()

	for _, l := range a.listeners {
		if err := l.Start(ctx); err != nil {
			a.stopListeners()
			return err
		}
	}
	return nil
}

// Stop tears everything down: listeners first so no new records arrive,
// then the API, then the sink so queued records drain.
func (a *Application) Stop(ctx context.Context) error {
	a.stopListeners()

	if err := a.api.Stop(ctx); err != nil {
		a.logger.Error("Failed to stop API server", "error", err)
	}
	if err := a.sink.Close(ctx); err != nil {
		return fmt.Errorf("telemetry store close: %w", err)
	}
	return nil
}

func (a *Application) stopListeners() {
	for _, l := range a.listeners {
		l.Stop()
	}
}

// reloadRules re-reads the config file and republishes the rule snapshot.
// Listener ports cannot change at runtime; a rule for a new port is loaded
// but has nothing accepting for it until restart.
func (a *Application) reloadRules() {
	cfg, err := config.Load(a.opts.ConfigPath, nil)
	if err != nil {
		a.logger.Error("Config reload failed, keeping previous rules", "error", err)
		return
	}

	pools, rules, err := cfg.Materialise()
	if err != nil {
		a.logger.Error("Config reload failed, keeping previous rules", "error", err)
		return
	}

	a.registry.Replace(pools, rules)
	a.router.Load(pools, rules)
	a.logger.Info("Reloaded pools and rules", "generation", a.router.Generation())
}
