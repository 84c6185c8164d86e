package query

import (
	"github.com/smallbiznis/storepulse/internal/query/service"
	"go.uber.org/fx"
)

var Module = fx.Module("query.service",
	fx.Provide(service.New),
)
