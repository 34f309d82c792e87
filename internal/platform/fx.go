// Package platform wires the payment provider implementation. Only the
// simulated store ships here; a real store integration satisfies the same
// domain contracts.
package platform

import (
	domain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/platform/simulated"
	"go.uber.org/fx"
)

var Module = fx.Module("platform",
	fx.Provide(simulated.NewStore),
	fx.Provide(simulated.NewQueue),
	fx.Provide(func(s *simulated.Store) domain.PaymentProvider { return s }),
	fx.Provide(func(q *simulated.Queue) domain.LegacyPaymentQueue { return q }),
)
