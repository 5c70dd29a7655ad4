package deliveryreceipt

import (
	"github.com/smallbiznis/fuelledger/internal/deliveryreceipt/repository"
	"github.com/smallbiznis/fuelledger/internal/deliveryreceipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deliveryreceipt.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideReceiptCounter),
	fx.Provide(service.NewService),
)
