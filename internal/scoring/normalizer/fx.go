package normalizer

import "go.uber.org/fx"

var Module = fx.Module("scoring.normalizer",
	fx.Provide(NewLoader),
)
