package device

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

// Runner is a long-lived component bound to the device: a controller or the simulator.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type Device struct {
	ID string
	H  *heater.Heater
}

func New(id string, h *heater.Heater) *Device {
	return &Device{ID: id, H: h}
}

// Run starts every runner and waits for them. The first runner to fail cancels the
// others; a shutdown caused by ctx is not reported as an error.
func (d *Device) Run(ctx context.Context, runners ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		if r == nil {
			continue
		}
		g.Go(func() error {
			err := r.Run(gctx)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
