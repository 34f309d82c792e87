package receipt

import (
	"github.com/smallbiznis/storebridge/internal/clock"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt",
	fx.Provide(func() Parser { return NewJSONParser() }),
	fx.Provide(func(provider platformdomain.PaymentProvider, parser Parser, clk clock.Clock) *Fetcher {
		return NewFetcher(provider, parser, clk)
	}),
)
