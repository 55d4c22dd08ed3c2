// Package inventory manages the registry of remote hosts Fleetpatch operates on.
package inventory

import (
	"context"
	"time"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the inventory target registry.
type Module struct {
	logger *zap.Logger
	config plugin.Config
	bus    plugin.EventBus
	store  *TargetStore
}

// New creates a new inventory module instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "inventory",
		Version:     "0.1.0",
		Description: "Registry of managed remote hosts",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.config = deps.Config
	m.logger = deps.Logger
	m.bus = deps.Bus

	if err := deps.Store.Migrate(ctx, "inventory", migrations()); err != nil {
		return err
	}
	m.store = NewTargetStore(deps.Store.DB())

	m.logger.Info("inventory module initialized")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	return nil
}

// Store exposes the target store to sibling modules (wired in the
// composition root).
func (m *Module) Store() *TargetStore {
	return m.store
}

// publishEvent emits an inventory event on the bus, if one is attached.
func (m *Module) publishEvent(topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     topic,
		Source:    "inventory",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
