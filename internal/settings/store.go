// Package settings is the runtime key/value store for operator tunables.
// Values are read fresh per decision through a short-lived cache, so edits
// take effect without a restart.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/noty/internal/cache"
	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnknownSetting = errors.New("unknown_setting")
	ErrInvalidValue   = errors.New("invalid_setting_value")
)

// missing marks a cached lookup of a key with no stored row.
const missing = "\x00"

type Setting struct {
	Key       string    `gorm:"primaryKey;type:text" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Cache cache.Cache[string, string] `optional:"true"`
}

type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.Cache[string, string]
	ttl   time.Duration
}

func NewStore(p Params) *Store {
	c := p.Cache
	if c == nil || p.Cfg.Settings.CacheTTL <= 0 {
		c = cache.NoopCache[string, string]{}
	}
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("settings.store"),
		cache: c,
		ttl:   p.Cfg.Settings.CacheTTL,
	}
}

// Get returns the stored value or the built-in default.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if value, ok := s.cache.Get(ctx, key); ok {
		if value == missing {
			fallback, _ := Default(key)
			return fallback, nil
		}
		return value, nil
	}

	var row Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return "", err
	}
	if row.Key == "" {
		s.cache.Set(ctx, key, missing, s.ttl)
		fallback, _ := Default(key)
		return fallback, nil
	}
	s.cache.Set(ctx, key, row.Value, s.ttl)
	return row.Value, nil
}

func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	parsed, err := parseBool(value)
	if err != nil {
		s.log.Warn("invalid boolean setting, using default", zap.String("key", key), zap.String("value", value))
		fallback, _ := Default(key)
		parsed, _ = parseBool(fallback)
	}
	return parsed, nil
}

func (s *Store) Int(ctx context.Context, key string) (int, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		s.log.Warn("invalid integer setting, using default", zap.String("key", key), zap.String("value", value))
		fallback, _ := Default(key)
		parsed, _ = strconv.Atoi(fallback)
	}
	return parsed, nil
}

func (s *Store) List(ctx context.Context, key string) ([]string, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return ParseList(value), nil
}

// All returns every known key with its effective value.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(definitions))
	for key, def := range definitions {
		out[key] = def.fallback
	}
	var rows []Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Set validates and stores a value, dropping any cached copy.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if err := validate(key, value); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO settings (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC(),
	).Error
	if err != nil {
		return err
	}
	s.cache.Delete(ctx, key)
	s.log.Info("setting updated", zap.String("key", key))
	return nil
}

// SetMany applies several values in one transaction.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	for key, value := range values {
		if err := validate(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for key, value := range values {
			if err := tx.Exec(
				`INSERT INTO settings (key, value, updated_at)
				 VALUES (?, ?, ?)
				 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				strings.TrimSpace(key),
				strings.TrimSpace(value),
				now,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for key := range values {
		s.cache.Delete(ctx, strings.TrimSpace(key))
	}
	return nil
}
