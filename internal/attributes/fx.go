package attributes

import (
	"github.com/smallbiznis/storebridge/internal/attributes/repository"
	"github.com/smallbiznis/storebridge/internal/attributes/service"
	"go.uber.org/fx"
)

var Module = fx.Module("attributes.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
