package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByClientID(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*BlockState, error)
	List(ctx context.Context, db *gorm.DB) ([]BlockState, error)
	ListMapped(ctx context.Context, db *gorm.DB) ([]BlockState, error)

	// SaveMapping creates the row when missing and stores the mapping.
	SaveMapping(ctx context.Context, db *gorm.DB, clientID snowflake.ID, userID *int64, method MappingMethod, at time.Time) (*BlockState, error)
	// SyncBlocked aligns the cached flag with the platform.
	SyncBlocked(ctx context.Context, db *gorm.DB, clientID snowflake.ID, blocked bool, at time.Time) error
	// Transition flips blocked only if it still holds the opposite value and
	// reports whether this call changed it.
	Transition(ctx context.Context, db *gorm.DB, clientID snowflake.ID, blocked bool, reason string, at time.Time) (bool, error)
	RecordError(ctx context.Context, db *gorm.DB, clientID snowflake.ID, message string, at time.Time) error
	SetAutoBlock(ctx context.Context, db *gorm.DB, clientID snowflake.ID, enabled bool, at time.Time) (*BlockState, error)
}
