// Package settings resolves runtime secrets: values stored in the settings
// collection override the ones from the config file.
package settings

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/store"
)

// Defaults are the configured fallbacks.
type Defaults struct {
	AdminPasswordHash     string
	UniversalPasswordHash string
}

type Service struct {
	store    store.Store
	defaults Defaults
	logger   *zap.Logger
}

func NewService(st store.Store, defaults Defaults, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, defaults: defaults, logger: logger.Named("Settings")}
}

// Get returns the stored value for key, or "" when unset.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var st models.Setting
	found, err := s.store.FindOne(ctx, models.CollectionSettings, store.ByID(key), &st)
	if err != nil {
		s.logger.Error("failed to load setting", zap.String("key", key), zap.Error(err))
		return "", apperr.Store("load settings", err)
	}
	if !found {
		return "", nil
	}
	return st.Value, nil
}

// Set upserts key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	now := models.Now()
	matched, err := s.store.Update(ctx, models.CollectionSettings, store.ByID(key), store.Update{
		Set: bson.M{"value": value, "updatedAt": now},
	})
	if err == nil && matched == 0 {
		st := models.Setting{Base: models.Base{ID: key}, Value: value}
		st.Stamp(now)
		err = s.store.Insert(ctx, models.CollectionSettings, &st)
	}
	if err != nil {
		s.logger.Error("failed to save setting", zap.String("key", key), zap.Error(err))
		return apperr.Store("save settings", err)
	}
	return nil
}

func (s *Service) AdminPasswordHash(ctx context.Context) (string, error) {
	return s.withDefault(ctx, models.SettingAdminPasswordHash, s.defaults.AdminPasswordHash)
}

func (s *Service) UniversalPasswordHash(ctx context.Context) (string, error) {
	return s.withDefault(ctx, models.SettingUniversalPasswordHash, s.defaults.UniversalPasswordHash)
}

func (s *Service) SetAdminPasswordHash(ctx context.Context, hash string) error {
	return s.Set(ctx, models.SettingAdminPasswordHash, hash)
}

func (s *Service) SetUniversalPasswordHash(ctx context.Context, hash string) error {
	return s.Set(ctx, models.SettingUniversalPasswordHash, hash)
}

func (s *Service) withDefault(ctx context.Context, key, fallback string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return fallback, nil
	}
	return v, nil
}
