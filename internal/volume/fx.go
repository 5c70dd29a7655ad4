package volume

import (
	"github.com/smallbiznis/fuelledger/internal/volume/service"
	"go.uber.org/fx"
)

var Module = fx.Module("volume.service",
	fx.Provide(service.NewService),
)
