package backend

import (
	"github.com/smallbiznis/storebridge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("backend",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Client {
		return NewHTTPClient(cfg.BackendBaseURL, cfg.BackendAPIKey, log)
	}),
)
