package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/storebridge/internal/attributes/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository { return &repository{} }

func (r *repository) FindByUserKey(ctx context.Context, db *gorm.DB, appUserID, key string) (*domain.SubscriberAttribute, error) {
	var attr domain.SubscriberAttribute
	err := db.WithContext(ctx).
		Where("app_user_id = ? AND attr_key = ?", appUserID, key).
		First(&attr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attr, nil
}

func (r *repository) Upsert(ctx context.Context, db *gorm.DB, attr *domain.SubscriberAttribute) error {
	existing, err := r.FindByUserKey(ctx, db, attr.AppUserID, attr.Key)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.WithContext(ctx).Create(attr).Error
	}
	return db.WithContext(ctx).
		Model(&domain.SubscriberAttribute{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"value":  attr.Value,
			"set_at": attr.SetAt,
			"synced": attr.Synced,
		}).Error
}

func (r *repository) ListUnsyncedByUser(ctx context.Context, db *gorm.DB, appUserID string) ([]domain.SubscriberAttribute, error) {
	var attrs []domain.SubscriberAttribute
	err := db.WithContext(ctx).
		Where("app_user_id = ? AND synced = ?", appUserID, false).
		Order("attr_key").
		Find(&attrs).Error
	return attrs, err
}

func (r *repository) ListUsersWithUnsynced(ctx context.Context, db *gorm.DB) ([]string, error) {
	var users []string
	err := db.WithContext(ctx).
		Model(&domain.SubscriberAttribute{}).
		Distinct("app_user_id").
		Where("synced = ?", false).
		Order("app_user_id").
		Pluck("app_user_id", &users).Error
	return users, err
}

// MarkSynced only flips rows whose value still matches: a newer write for the
// same key must stay unsynced.
func (r *repository) MarkSynced(ctx context.Context, db *gorm.DB, appUserID, key, value string) error {
	return db.WithContext(ctx).
		Model(&domain.SubscriberAttribute{}).
		Where("app_user_id = ? AND attr_key = ? AND value = ?", appUserID, key, value).
		Update("synced", true).Error
}

func (r *repository) CountUnsynced(ctx context.Context, db *gorm.DB, appUserID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.SubscriberAttribute{}).
		Where("app_user_id = ? AND synced = ?", appUserID, false).
		Count(&count).Error
	return count, err
}

func (r *repository) DeleteAllForUser(ctx context.Context, db *gorm.DB, appUserID string) error {
	return db.WithContext(ctx).
		Where("app_user_id = ?", appUserID).
		Delete(&domain.SubscriberAttribute{}).Error
}
