// Package migration creates the local tables on startup so storebridge is
// usable out of the box against an empty database file.
package migration

import (
	attributesdomain "github.com/smallbiznis/storebridge/internal/attributes/domain"
	"github.com/smallbiznis/storebridge/internal/customerinfo"
	posterdomain "github.com/smallbiznis/storebridge/internal/poster/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		return conn.AutoMigrate(
			&attributesdomain.SubscriberAttribute{},
			&posterdomain.PostedTransaction{},
			&customerinfo.CachedCustomerInfo{},
		)
	}),
)
