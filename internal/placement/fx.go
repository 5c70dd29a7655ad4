package placement

import (
	"github.com/smallbiznis/fuelledger/internal/placement/repository"
	"github.com/smallbiznis/fuelledger/internal/placement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("placement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
