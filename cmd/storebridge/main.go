package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storebridge/internal/attributes"
	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/config"
	"github.com/smallbiznis/storebridge/internal/customerinfo"
	"github.com/smallbiznis/storebridge/internal/diagnostics"
	"github.com/smallbiznis/storebridge/internal/listener"
	"github.com/smallbiznis/storebridge/internal/logger"
	"github.com/smallbiznis/storebridge/internal/migration"
	"github.com/smallbiznis/storebridge/internal/orchestrator"
	"github.com/smallbiznis/storebridge/internal/platform"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/platform/simulated"
	"github.com/smallbiznis/storebridge/internal/poster"
	"github.com/smallbiznis/storebridge/internal/products"
	"github.com/smallbiznis/storebridge/internal/receipt"
	"github.com/smallbiznis/storebridge/internal/server"
	"github.com/smallbiznis/storebridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		diagnostics.Module,

		// Platform + backend collaborators
		platform.Module,
		receipt.Module,
		backend.Module,

		// Engine
		customerinfo.Module,
		attributes.Module,
		poster.Module,
		products.Module,
		orchestrator.Module,
		listener.Module,

		// HTTP surface
		server.Module,

		fx.Invoke(seedDevCatalog),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// seedDevCatalog puts a small catalog into the simulated store so the service
// answers product and purchase requests on a fresh checkout.
func seedDevCatalog(store *simulated.Store) {
	store.AddProduct("USA", platformdomain.StoreProduct{
		ID:             "pro.monthly",
		Title:          "Pro Monthly",
		Description:    "Pro access, renews monthly",
		PriceMinorUnit: 999,
		CurrencyCode:   "USD",
	})
	store.AddProduct("USA", platformdomain.StoreProduct{
		ID:             "pro.yearly",
		Title:          "Pro Yearly",
		Description:    "Pro access, renews yearly",
		PriceMinorUnit: 9999,
		CurrencyCode:   "USD",
	})
}
