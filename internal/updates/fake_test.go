package updates

import (
	"context"

	"github.com/fleetpatch/fleetpatch/internal/remote"
)

// fakeRunner scripts remote command behavior for tests.
type fakeRunner struct {
	run func(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, ep remote.Endpoint, cmd string, opts remote.Options) (*remote.Result, error) {
	return f.run(ctx, ep, cmd, opts)
}
