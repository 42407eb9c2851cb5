// Package seed writes the default rows an empty installation starts with.
package seed

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	notificationservice "github.com/smallbiznis/noty/internal/notification/service"
	"github.com/smallbiznis/noty/internal/settings"
	"gorm.io/gorm"
)

var templateTypes = []notificationdomain.MessageType{
	notificationdomain.MessageTypeWarning,
	notificationdomain.MessageTypeOverdue,
	notificationdomain.MessageTypeTraccarWarning,
	notificationdomain.MessageTypeTraccarBlock,
	notificationdomain.MessageTypeTraccarUnblock,
}

// EnsureDefaults stores every setting default and message template that is
// not present yet. Existing rows, including operator edits, are kept.
func EnsureDefaults(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSettingsTx(ctx, tx); err != nil {
			return err
		}
		return ensureTemplatesTx(ctx, tx, node)
	})
}

func ensureSettingsTx(ctx context.Context, tx *gorm.DB) error {
	keys := settings.Keys()
	sort.Strings(keys)
	now := time.Now().UTC()
	for _, key := range keys {
		value, _ := settings.Default(key)
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO settings (key, value, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT (key) DO NOTHING`,
			key,
			value,
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureTemplatesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()
	for _, messageType := range templateTypes {
		body, ok := notificationservice.DefaultTemplate(messageType)
		if !ok {
			continue
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO message_templates (id, type, body, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (type) DO NOTHING`,
			node.Generate(),
			messageType,
			body,
			true,
			now,
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
