package recalculation

import (
	"github.com/smallbiznis/fuelledger/internal/recalculation/repository"
	"github.com/smallbiznis/fuelledger/internal/recalculation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recalculation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
