// Package domain contains persistence models and contracts for the
// subscriber attribute sync buffer.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriberAttribute is the latest write for one (app user, key) pair. A
// newer write overwrites the row and clears Synced; the row is only removed
// after the backend has acknowledged it and no newer unsynced write exists.
type SubscriberAttribute struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AppUserID string       `gorm:"not null;uniqueIndex:idx_subscriber_attributes_user_key"`
	Key       string       `gorm:"column:attr_key;not null;uniqueIndex:idx_subscriber_attributes_user_key"`
	Value     string       `gorm:"not null"`
	SetAt     time.Time    `gorm:"not null"`
	Synced    bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriberAttribute) TableName() string { return "subscriber_attributes" }

// Value is an attribute write as carried on backend requests.
type Value struct {
	Value string
	SetAt time.Time
}

var (
	ErrInvalidAppUserID = errors.New("invalid_app_user_id")
	ErrInvalidKey       = errors.New("invalid_attribute_key")
)
