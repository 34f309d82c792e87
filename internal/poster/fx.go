package poster

import (
	"github.com/smallbiznis/storebridge/internal/poster/service"
	"go.uber.org/fx"
)

var Module = fx.Module("poster.service",
	fx.Provide(service.NewService),
)
