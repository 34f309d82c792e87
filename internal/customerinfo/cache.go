// Package customerinfo keeps the last-known CustomerInfo snapshot per app
// user, persisted so restarts still know the best cached entitlements.
package customerinfo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CachedCustomerInfo is the stored snapshot row.
type CachedCustomerInfo struct {
	AppUserID string         `gorm:"primaryKey"`
	Payload   datatypes.JSON `gorm:"not null"`
	FetchedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CachedCustomerInfo) TableName() string { return "cached_customer_info" }

type Cache struct {
	mu    sync.RWMutex
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	hot   map[string]backend.CustomerInfo
}

func NewCache(db *gorm.DB, log *zap.Logger, clk clock.Clock) *Cache {
	return &Cache{
		db:    db,
		log:   log.Named("customerinfo.cache"),
		clock: clk,
		hot:   make(map[string]backend.CustomerInfo),
	}
}

// Get returns the cached snapshot for the user, falling through to storage.
func (c *Cache) Get(ctx context.Context, appUserID string) (backend.CustomerInfo, bool) {
	c.mu.RLock()
	info, ok := c.hot[appUserID]
	c.mu.RUnlock()
	if ok {
		return info, true
	}

	var row CachedCustomerInfo
	err := c.db.WithContext(ctx).Where("app_user_id = ?", appUserID).First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.log.Warn("customer info read failed", zap.Error(err))
		}
		return backend.CustomerInfo{}, false
	}
	if err := json.Unmarshal(row.Payload, &info); err != nil {
		return backend.CustomerInfo{}, false
	}

	c.mu.Lock()
	c.hot[appUserID] = info
	c.mu.Unlock()
	return info, true
}

// Set stores a fresh snapshot, replacing any prior one for the user.
func (c *Cache) Set(ctx context.Context, appUserID string, info backend.CustomerInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.hot[appUserID] = info
	c.mu.Unlock()

	row := CachedCustomerInfo{
		AppUserID: appUserID,
		Payload:   payload,
		FetchedAt: c.clock.Now(),
	}
	return c.db.WithContext(ctx).Save(&row).Error
}
