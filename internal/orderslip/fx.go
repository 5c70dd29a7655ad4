package orderslip

import (
	"github.com/smallbiznis/fuelledger/internal/orderslip/repository"
	"github.com/smallbiznis/fuelledger/internal/orderslip/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orderslip.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
