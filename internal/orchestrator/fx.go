package orchestrator

import (
	"github.com/smallbiznis/storebridge/internal/orchestrator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("orchestrator.service",
	fx.Provide(service.NewService),
)
