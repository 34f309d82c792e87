// Package db opens the local durable store. storebridge keeps its pending
// writes in an embedded sqlite database; writes that have returned are assumed
// crash-safe.
package db

import (
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storebridge/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func New(cfg config.Config) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

var Module = fx.Module("db",
	fx.Provide(New),
)
