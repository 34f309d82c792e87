package products

import (
	"github.com/smallbiznis/storebridge/internal/products/service"
	"go.uber.org/fx"
)

var Module = fx.Module("products.service",
	fx.Provide(service.NewService),
)
