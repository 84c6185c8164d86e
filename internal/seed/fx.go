package seed

import (
	"context"

	"github.com/smallbiznis/storepulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Provide(New),
	fx.Invoke(Register),
)

// Register seeds demo data in the background once the app has started, when
// SEED_DEMO is set outside production. Migrations have already run by then:
// they are an fx invoke, not a start hook.
func Register(lc fx.Lifecycle, cfg config.Config, s *Seeder) {
	if !Enabled(cfg) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if _, err := s.Demo(ctx, Options{Days: cfg.SeedDemoDays}); err != nil {
					s.log.Error("demo seed failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
