package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/noty/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

func (r *repo) FindByClientID(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*domain.BlockState, error) {
	var state domain.BlockState
	err := db.WithContext(ctx).Where("client_id = ?", clientID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.BlockState, error) {
	var states []domain.BlockState
	if err := db.WithContext(ctx).Order("client_id ASC").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *repo) ListMapped(ctx context.Context, db *gorm.DB) ([]domain.BlockState, error) {
	var states []domain.BlockState
	err := db.WithContext(ctx).
		Where("traccar_user_id IS NOT NULL AND mapping_method <> ?", domain.MappingMethodUnmapped).
		Order("client_id ASC").
		Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

func (r *repo) SaveMapping(ctx context.Context, db *gorm.DB, clientID snowflake.ID, userID *int64, method domain.MappingMethod, at time.Time) (*domain.BlockState, error) {
	if userID == nil {
		method = domain.MappingMethodUnmapped
	}
	err := db.WithContext(ctx).Exec(
		`INSERT INTO block_states (id, client_id, traccar_user_id, mapping_method, blocked, block_reason, auto_block_enabled, last_sync_at, last_sync_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?, '', ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET
		   traccar_user_id = excluded.traccar_user_id,
		   mapping_method = excluded.mapping_method,
		   last_sync_at = excluded.last_sync_at,
		   last_sync_error = '',
		   updated_at = excluded.updated_at`,
		r.genID.Generate(),
		clientID,
		userID,
		method,
		false,
		true,
		at,
		at,
		at,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByClientID(ctx, db, clientID)
}

func (r *repo) SyncBlocked(ctx context.Context, db *gorm.DB, clientID snowflake.ID, blocked bool, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE block_states SET blocked = ?, last_sync_at = ?, updated_at = ? WHERE client_id = ?`,
		blocked,
		at,
		at,
		clientID,
	).Error
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, clientID snowflake.ID, blocked bool, reason string, at time.Time) (bool, error) {
	query := `UPDATE block_states
		 SET blocked = ?, block_reason = ?, last_unblocked_at = ?, last_sync_at = ?, last_sync_error = '', updated_at = ?
		 WHERE client_id = ? AND blocked = ?`
	if blocked {
		query = `UPDATE block_states
		 SET blocked = ?, block_reason = ?, last_blocked_at = ?, last_sync_at = ?, last_sync_error = '', updated_at = ?
		 WHERE client_id = ? AND blocked = ?`
	} else {
		reason = ""
	}
	res := db.WithContext(ctx).Exec(query, blocked, reason, at, at, at, clientID, !blocked)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordError(ctx context.Context, db *gorm.DB, clientID snowflake.ID, message string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE block_states SET last_sync_error = ?, last_sync_at = ?, updated_at = ? WHERE client_id = ?`,
		message,
		at,
		at,
		clientID,
	).Error
}

func (r *repo) SetAutoBlock(ctx context.Context, db *gorm.DB, clientID snowflake.ID, enabled bool, at time.Time) (*domain.BlockState, error) {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO block_states (id, client_id, traccar_user_id, mapping_method, blocked, block_reason, auto_block_enabled, last_sync_error, created_at, updated_at)
		 VALUES (?, ?, NULL, ?, ?, '', ?, '', ?, ?)
		 ON CONFLICT (client_id) DO UPDATE SET auto_block_enabled = excluded.auto_block_enabled, updated_at = excluded.updated_at`,
		r.genID.Generate(),
		clientID,
		domain.MappingMethodUnmapped,
		false,
		enabled,
		at,
		at,
	).Error
	if err != nil {
		return nil, err
	}
	return r.FindByClientID(ctx, db, clientID)
}
