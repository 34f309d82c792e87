package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByUserKey(ctx context.Context, db *gorm.DB, appUserID, key string) (*SubscriberAttribute, error)
	Upsert(ctx context.Context, db *gorm.DB, attr *SubscriberAttribute) error
	ListUnsyncedByUser(ctx context.Context, db *gorm.DB, appUserID string) ([]SubscriberAttribute, error)
	ListUsersWithUnsynced(ctx context.Context, db *gorm.DB) ([]string, error)
	MarkSynced(ctx context.Context, db *gorm.DB, appUserID, key, value string) error
	CountUnsynced(ctx context.Context, db *gorm.DB, appUserID string) (int64, error)
	DeleteAllForUser(ctx context.Context, db *gorm.DB, appUserID string) error
}
