package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storebridge/internal/attributes/domain"
	"github.com/smallbiznis/storebridge/internal/attributes/repository"
	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manual mock backend; records posts and can reject keys per user.
type mockBackend struct {
	posts        []attributePost
	rejectedKeys map[string][]string
	failUsers    map[string]bool
}

type attributePost struct {
	appUserID string
	attrs     map[string]backend.AttributeValue
}

func (m *mockBackend) PostReceipt(ctx context.Context, req backend.ReceiptPostRequest) (backend.CustomerInfo, []backend.AttributeError, error) {
	return backend.CustomerInfo{}, nil, nil
}

func (m *mockBackend) PostSubscriberAttributes(ctx context.Context, appUserID string, attrs map[string]backend.AttributeValue) ([]backend.AttributeError, error) {
	if m.failUsers[appUserID] {
		return nil, backend.ErrNetwork
	}
	m.posts = append(m.posts, attributePost{appUserID: appUserID, attrs: attrs})
	var errs []backend.AttributeError
	for _, key := range m.rejectedKeys[appUserID] {
		errs = append(errs, backend.AttributeError{Key: key, Code: "invalid", Message: "rejected"})
	}
	return errs, nil
}

func (m *mockBackend) GetOfferings(ctx context.Context, appUserID string) (backend.Offerings, error) {
	return backend.Offerings{}, nil
}

func (m *mockBackend) CheckIntroEligibility(ctx context.Context, appUserID string, productIDs []string) (map[string]backend.IntroEligibility, error) {
	return nil, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SubscriberAttribute{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, be backend.Client) (*Service, *clock.FakeClock) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		Backend: be,
	}).(*Service)
	return svc, clk
}

func countRows(t *testing.T, db *gorm.DB, appUserID string) int64 {
	var count int64
	require.NoError(t, db.Model(&domain.SubscriberAttribute{}).Where("app_user_id = ?", appUserID).Count(&count).Error)
	return count
}

func TestSetSameValueIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	svc, clk := newTestService(t, db, &mockBackend{})
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))

	var first domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userA").First(&first).Error)

	clk.Advance(time.Hour)
	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))

	var second domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userA").First(&second).Error)

	assert.Equal(t, int64(1), countRows(t, db, "userA"))
	assert.Equal(t, first.SetAt, second.SetAt)
	assert.False(t, second.Synced)
}

func TestSetNewValueSupersedesSyncedRow(t *testing.T) {
	db := setupTestDB(t)
	svc, clk := newTestService(t, db, &mockBackend{})
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))
	require.NoError(t, db.Model(&domain.SubscriberAttribute{}).
		Where("app_user_id = ?", "userA").
		Update("synced", true).Error)

	clk.Advance(time.Minute)
	require.NoError(t, svc.Set(ctx, "userA", "band", "Iron Maiden"))

	var row domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userA").First(&row).Error)
	assert.Equal(t, "Iron Maiden", row.Value)
	assert.False(t, row.Synced)
	assert.Equal(t, int64(1), countRows(t, db, "userA"))
}

func TestSyncSweepCoversNonCurrentUsersAndPurges(t *testing.T) {
	db := setupTestDB(t)
	be := &mockBackend{}
	svc, _ := newTestService(t, db, be)
	ctx := context.Background()

	// userA set an attribute before the identity switch to userB.
	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))
	require.NoError(t, svc.Set(ctx, "userB", "city", "Madrid"))

	attempted, err := svc.SyncForAllUsers(ctx, "userB")
	require.NoError(t, err)
	assert.Equal(t, 2, attempted)

	users := make(map[string]bool)
	for _, post := range be.posts {
		users[post.appUserID] = true
	}
	assert.True(t, users["userA"])
	assert.True(t, users["userB"])

	// Non-current userA is purged entirely; current userB keeps synced rows.
	assert.Equal(t, int64(0), countRows(t, db, "userA"))
	assert.Equal(t, int64(1), countRows(t, db, "userB"))

	var row domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userB").First(&row).Error)
	assert.True(t, row.Synced)
}

func TestSyncFailureRetainsNonCurrentUserAttributes(t *testing.T) {
	db := setupTestDB(t)
	be := &mockBackend{failUsers: map[string]bool{"userA": true}}
	svc, _ := newTestService(t, db, be)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))

	_, err := svc.SyncForAllUsers(ctx, "userB")
	require.NoError(t, err)

	// Never silently dropped: the unsynced row survives the failed sweep.
	assert.Equal(t, int64(1), countRows(t, db, "userA"))
	var row domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userA").First(&row).Error)
	assert.False(t, row.Synced)
}

func TestRejectedAttributesAreNotMarkedSynced(t *testing.T) {
	db := setupTestDB(t)
	be := &mockBackend{rejectedKeys: map[string][]string{"userA": {"email"}}}
	svc, _ := newTestService(t, db, be)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))
	require.NoError(t, svc.Set(ctx, "userA", "email", "not-an-email"))

	_, err := svc.SyncForAllUsers(ctx, "userA")
	require.NoError(t, err)

	var band, email domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ? AND attr_key = ?", "userA", "band").First(&band).Error)
	require.NoError(t, db.Where("app_user_id = ? AND attr_key = ?", "userA", "email").First(&email).Error)
	assert.True(t, band.Synced)
	assert.False(t, email.Synced)
}

func TestMarkSyncedSkipsNewerWrite(t *testing.T) {
	db := setupTestDB(t)
	svc, clk := newTestService(t, db, &mockBackend{})
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "userA", "band", "Metallica"))
	snapshot, err := svc.UnsyncedForUser(ctx, "userA")
	require.NoError(t, err)

	// A newer write lands between snapshot and acknowledgement.
	clk.Advance(time.Second)
	require.NoError(t, svc.Set(ctx, "userA", "band", "Iron Maiden"))

	require.NoError(t, svc.MarkSynced(ctx, "userA", snapshot, nil))

	var row domain.SubscriberAttribute
	require.NoError(t, db.Where("app_user_id = ?", "userA").First(&row).Error)
	assert.Equal(t, "Iron Maiden", row.Value)
	assert.False(t, row.Synced)
}
