package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storebridge/internal/attributes/domain"
	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/diagnostics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository

	backend backend.Client
	sink    *diagnostics.Sink
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository

	Backend backend.Client
	Sink    *diagnostics.Sink `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("attributes.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		backend: p.Backend,
		sink:    p.Sink,
	}
}

// Set implements domain.Service.
func (s *Service) Set(ctx context.Context, appUserID, key, value string) error {
	if strings.TrimSpace(appUserID) == "" {
		return domain.ErrInvalidAppUserID
	}
	if strings.TrimSpace(key) == "" {
		return domain.ErrInvalidKey
	}

	current, err := s.repo.FindByUserKey(ctx, s.db, appUserID, key)
	if err != nil {
		return err
	}
	if current != nil && current.Value == value {
		// Same value: no new write, no sync triggered.
		return nil
	}

	attr := &domain.SubscriberAttribute{
		ID:        s.genID.Generate(),
		AppUserID: appUserID,
		Key:       key,
		Value:     value,
		SetAt:     s.clock.Now(),
		Synced:    false,
	}
	return s.repo.Upsert(ctx, s.db, attr)
}

// SetAttributes implements domain.Service.
func (s *Service) SetAttributes(ctx context.Context, appUserID string, attrs map[string]string) error {
	for key, value := range attrs {
		if err := s.Set(ctx, appUserID, key, value); err != nil {
			return err
		}
	}
	return nil
}

// UnsyncedForUser implements domain.Service.
func (s *Service) UnsyncedForUser(ctx context.Context, appUserID string) (map[string]domain.Value, error) {
	rows, err := s.repo.ListUnsyncedByUser(ctx, s.db, appUserID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Value, len(rows))
	for _, row := range rows {
		out[row.Key] = domain.Value{Value: row.Value, SetAt: row.SetAt}
	}
	return out, nil
}

// UnsyncedForAllUsers implements domain.Service.
func (s *Service) UnsyncedForAllUsers(ctx context.Context) (map[string]map[string]domain.Value, error) {
	users, err := s.repo.ListUsersWithUnsynced(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]domain.Value, len(users))
	for _, user := range users {
		attrs, err := s.UnsyncedForUser(ctx, user)
		if err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			out[user] = attrs
		}
	}
	return out, nil
}

// MarkSynced implements domain.Service.
func (s *Service) MarkSynced(ctx context.Context, appUserID string, snapshot map[string]domain.Value, rejectedKeys []string) error {
	rejected := make(map[string]bool, len(rejectedKeys))
	for _, key := range rejectedKeys {
		rejected[key] = true
	}
	for key, value := range snapshot {
		if rejected[key] {
			continue
		}
		if err := s.repo.MarkSynced(ctx, s.db, appUserID, key, value.Value); err != nil {
			return err
		}
	}
	return nil
}

// SyncForAllUsers implements domain.Service.
func (s *Service) SyncForAllUsers(ctx context.Context, currentAppUserID string) (int, error) {
	pending, err := s.UnsyncedForAllUsers(ctx)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for user, attrs := range pending {
		attempted++

		attrErrs, err := s.backend.PostSubscriberAttributes(ctx, user, toWire(attrs))
		if err != nil {
			s.sink.AttributeSync("error")
			s.log.Warn("attribute sync failed",
				zap.String("app_user_id", user),
				zap.Error(err))
			continue
		}

		rejectedKeys := make([]string, 0, len(attrErrs))
		for _, attrErr := range attrErrs {
			rejectedKeys = append(rejectedKeys, attrErr.Key)
		}
		if err := s.MarkSynced(ctx, user, attrs, rejectedKeys); err != nil {
			return attempted, err
		}
		s.sink.AttributeSync("success")

		if user != currentAppUserID {
			if err := s.purgeIfFullySynced(ctx, user); err != nil {
				return attempted, err
			}
		}
	}
	return attempted, nil
}

// purgeIfFullySynced removes a non-current user's rows once nothing unsynced
// remains. The current user keeps synced rows for same-value no-op detection.
func (s *Service) purgeIfFullySynced(ctx context.Context, appUserID string) error {
	remaining, err := s.repo.CountUnsynced(ctx, s.db, appUserID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return s.repo.DeleteAllForUser(ctx, s.db, appUserID)
}

func toWire(attrs map[string]domain.Value) map[string]backend.AttributeValue {
	out := make(map[string]backend.AttributeValue, len(attrs))
	for key, value := range attrs {
		out[key] = backend.AttributeValue{Value: value.Value, SetAt: value.SetAt}
	}
	return out
}
