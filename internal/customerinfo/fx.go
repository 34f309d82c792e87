package customerinfo

import "go.uber.org/fx"

var Module = fx.Module("customerinfo",
	fx.Provide(NewCache),
)
