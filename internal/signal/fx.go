package signal

import (
	"github.com/smallbiznis/storepulse/internal/signal/repository"
	"github.com/smallbiznis/storepulse/internal/signal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("signal.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
