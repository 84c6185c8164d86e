package heatmap

import (
	"github.com/smallbiznis/storepulse/internal/heatmap/service"
	"go.uber.org/fx"
)

var Module = fx.Module("heatmap.service",
	fx.Provide(service.New),
)
