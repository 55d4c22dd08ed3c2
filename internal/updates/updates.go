// Package updates implements the update orchestration engine: update
// checks, upgrades, reboots and live output streaming for the fleet.
package updates

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/internal/inventory"
	"github.com/fleetpatch/fleetpatch/internal/remote"
	"github.com/fleetpatch/fleetpatch/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
	_ plugin.Validator    = (*Module)(nil)
)

// targetProvider is what the engine needs from the inventory module.
type targetProvider interface {
	Store() *inventory.TargetStore
}

// Module is the update orchestration engine plugin.
type Module struct {
	cfg    Config
	logger *zap.Logger
	bus    plugin.EventBus

	governor  *Governor
	cache     *Cache
	history   *HistoryStore
	broadcast *Broadcaster
	runner    remote.Runner
	executor  *Executor
	scheduler *Scheduler
}

// New creates a new updates module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "updates",
		Version:      "0.1.0",
		Description:  "Update orchestration engine for remote hosts",
		Dependencies: []string{"inventory"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	cfg, err := LoadConfig(deps.Config)
	if err != nil {
		return err
	}
	m.cfg = cfg

	if err := deps.Store.Migrate(ctx, "updates", migrations()); err != nil {
		return err
	}

	inv, ok := deps.Plugins.Resolve("inventory")
	if !ok {
		return fmt.Errorf("updates: inventory module not available")
	}
	provider, ok := inv.(targetProvider)
	if !ok {
		return fmt.Errorf("updates: inventory module does not expose a target store")
	}
	targets := provider.Store()

	m.governor = NewGovernor(cfg.MaxSessions)
	m.cache = NewCache(cfg.CacheTTL)
	m.history = NewHistoryStore(deps.Store.DB())
	m.broadcast = NewBroadcaster(cfg.StreamBuffer, m.logger.Named("stream"))
	if m.runner == nil {
		m.runner = remote.NewSSHRunner(m.logger.Named("ssh"))
	}
	prober := NewProber(m.runner, m.cache, m.logger.Named("prober"))
	m.executor = NewExecutor(cfg, m.governor, m.cache, m.history, m.broadcast,
		m.runner, targets, prober, m.bus, m.logger)
	m.scheduler = NewScheduler(targets, m.cache, m.executor, cfg.CheckInterval,
		m.logger.Named("scheduler"))

	m.logger.Info("updates module initialized",
		zap.Int("max_sessions", cfg.MaxSessions),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)
	return nil
}

func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(ctx context.Context) error {
	m.executor.Start(ctx)
	m.scheduler.Start(ctx)
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	m.scheduler.Stop()
	m.executor.Stop()
	return nil
}
