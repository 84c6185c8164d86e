package scoring

import (
	"github.com/smallbiznis/storepulse/internal/scoring/normalizer"
	"github.com/smallbiznis/storepulse/internal/scoring/repository"
	"github.com/smallbiznis/storepulse/internal/scoring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scoring.service",
	normalizer.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
