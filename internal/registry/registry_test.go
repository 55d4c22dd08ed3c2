package registry

import (
	"context"
	"testing"

	"github.com/fleetpatch/fleetpatch/pkg/plugin"
	"go.uber.org/zap"
)

// fakeModule is a minimal plugin.Plugin for registry tests.
type fakeModule struct {
	info    plugin.PluginInfo
	inited  bool
	started bool
	stopped bool
}

func (f *fakeModule) Info() plugin.PluginInfo { return f.info }
func (f *fakeModule) Init(_ context.Context, _ plugin.Dependencies) error {
	f.inited = true
	return nil
}
func (f *fakeModule) Start(_ context.Context) error { f.started = true; return nil }
func (f *fakeModule) Stop(_ context.Context) error  { f.stopped = true; return nil }

func mod(name string, deps ...string) *fakeModule {
	return &fakeModule{info: plugin.PluginInfo{
		Name:         name,
		Version:      "0.1.0",
		Dependencies: deps,
		APIVersion:   plugin.APIVersionCurrent,
	}}
}

func noDeps(string) plugin.Dependencies { return plugin.Dependencies{} }

func TestRegistry_DependencyOrder(t *testing.T) {
	r := New(zap.NewNop())

	updates := mod("updates", "inventory")
	inventory := mod("inventory")

	// Register in the wrong order on purpose.
	for _, m := range []*fakeModule{updates, inventory} {
		if err := r.Register(m); err != nil {
			t.Fatalf("register %s: %v", m.info.Name, err)
		}
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("got %d active modules, want 2", len(all))
	}
	if all[0].Info().Name != "inventory" {
		t.Errorf("start order = [%s, %s], want inventory first",
			all[0].Info().Name, all[1].Info().Name)
	}
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Register(mod("updates")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(mod("updates")); err == nil {
		t.Error("duplicate register succeeded, want error")
	}
}

func TestRegistry_MissingDependencyDisablesOptional(t *testing.T) {
	r := New(zap.NewNop())
	m := mod("updates", "inventory") // inventory not registered
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !r.IsDisabled("updates") {
		t.Error("module with missing dependency not disabled")
	}
}

func TestRegistry_MissingDependencyFailsRequired(t *testing.T) {
	r := New(zap.NewNop())
	m := mod("updates", "inventory")
	m.info.Required = true
	if err := r.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Validate(); err == nil {
		t.Error("validate succeeded with missing required dependency")
	}
}

func TestRegistry_CycleDetected(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Register(mod("a", "b")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(mod("b", "a")); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(); err == nil {
		t.Error("validate succeeded with dependency cycle")
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := New(zap.NewNop())
	m := mod("inventory")
	if err := r.Register(m); err != nil {
		t.Fatal(err)
	}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := r.InitAll(ctx, noDeps); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	r.StopAll(ctx)

	if !m.inited || !m.started || !m.stopped {
		t.Errorf("lifecycle flags = init:%v start:%v stop:%v, want all true",
			m.inited, m.started, m.stopped)
	}
}
