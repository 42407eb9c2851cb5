package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type MappingMethod string

const (
	MappingMethodEmail    MappingMethod = "email"
	MappingMethodPhone    MappingMethod = "phone"
	MappingMethodManual   MappingMethod = "manual"
	MappingMethodUnmapped MappingMethod = "unmapped"
)

// BlockState caches a client's access on the tracking platform. The remote
// disabled flag is authoritative; Blocked mirrors it.
type BlockState struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	ClientID         snowflake.ID  `gorm:"not null;uniqueIndex" json:"client_id"`
	TraccarUserID    *int64        `gorm:"index" json:"traccar_user_id,omitempty"`
	MappingMethod    MappingMethod `gorm:"type:text;not null" json:"mapping_method"`
	Blocked          bool          `gorm:"not null" json:"blocked"`
	BlockReason      string        `gorm:"type:text" json:"block_reason,omitempty"`
	AutoBlockEnabled bool          `gorm:"not null" json:"auto_block_enabled"`
	LastBlockedAt    *time.Time    `json:"last_blocked_at,omitempty"`
	LastUnblockedAt  *time.Time    `json:"last_unblocked_at,omitempty"`
	LastSyncAt       *time.Time    `json:"last_sync_at,omitempty"`
	LastSyncError    string        `gorm:"type:text" json:"last_sync_error,omitempty"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
}

func (BlockState) TableName() string { return "block_states" }

// AccessState is the explicit state of a client on the tracking platform.
// It is one of Unmapped, MappedUnblocked or MappedBlocked.
type AccessState interface {
	isAccessState()
	String() string
}

type Unmapped struct{}

type MappedUnblocked struct {
	UserID int64
}

type MappedBlocked struct {
	UserID int64
	Reason string
}

func (Unmapped) isAccessState()        {}
func (MappedUnblocked) isAccessState() {}
func (MappedBlocked) isAccessState()   {}

func (Unmapped) String() string        { return "unmapped" }
func (MappedUnblocked) String() string { return "mapped_unblocked" }
func (MappedBlocked) String() string   { return "mapped_blocked" }

// Access derives the state variant. A missing row is Unmapped.
func (s *BlockState) Access() AccessState {
	if s == nil || s.TraccarUserID == nil || s.MappingMethod == MappingMethodUnmapped {
		return Unmapped{}
	}
	if s.Blocked {
		return MappedBlocked{UserID: *s.TraccarUserID, Reason: s.BlockReason}
	}
	return MappedUnblocked{UserID: *s.TraccarUserID}
}

// UserIDOf returns the platform user id of a mapped state.
func UserIDOf(state AccessState) (int64, bool) {
	switch s := state.(type) {
	case MappedUnblocked:
		return s.UserID, true
	case MappedBlocked:
		return s.UserID, true
	}
	return 0, false
}

// SweepResult reports one block/unblock sweep.
type SweepResult struct {
	ClientsEvaluated int      `json:"clients_evaluated"`
	Mapped           int      `json:"mapped"`
	Unmapped         int      `json:"unmapped"`
	Blocked          int      `json:"blocked"`
	Unblocked        int      `json:"unblocked"`
	Warned           int      `json:"warned"`
	Failed           int      `json:"failed"`
	Disabled         bool     `json:"disabled,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}
