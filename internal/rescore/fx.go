package rescore

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("rescore",
	fx.Provide(New),
	fx.Invoke(Start),
)

// Start runs the rescorer loop for the lifetime of the application.
func Start(lc fx.Lifecycle, r *Rescorer) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go r.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
