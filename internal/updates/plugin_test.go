package updates_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/fleetpatch/fleetpatch/internal/event"
	"github.com/fleetpatch/fleetpatch/internal/inventory"
	"github.com/fleetpatch/fleetpatch/internal/store"
	"github.com/fleetpatch/fleetpatch/internal/updates"
	"github.com/fleetpatch/fleetpatch/pkg/plugin"
	"github.com/fleetpatch/fleetpatch/pkg/plugin/plugintest"
)

type staticResolver map[string]plugin.Plugin

func (r staticResolver) Resolve(name string) (plugin.Plugin, bool) {
	p, ok := r[name]
	return p, ok
}

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t,
		func() plugin.Plugin { return updates.New() },
		func(t *testing.T, name string) plugin.Dependencies {
			db, err := store.New(":memory:")
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			t.Cleanup(func() { db.Close() })

			// The engine resolves its target source from the
			// inventory module, so init one first.
			bus := event.NewBus(zap.NewNop())
			inv := inventory.New()
			if err := inv.Init(context.Background(), plugin.Dependencies{
				Logger: zap.NewNop(),
				Store:  db,
				Bus:    bus,
			}); err != nil {
				t.Fatalf("init inventory: %v", err)
			}

			return plugin.Dependencies{
				Logger:  zap.NewNop(),
				Store:   db,
				Bus:     bus,
				Plugins: staticResolver{"inventory": inv},
			}
		},
	)
}
