// Package migration creates and evolves the schema for every table the
// service owns.
package migration

import (
	automationdomain "github.com/smallbiznis/noty/internal/automation/domain"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	"github.com/smallbiznis/noty/internal/events"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	trackingdomain "github.com/smallbiznis/noty/internal/tracking/domain"
	webhookdomain "github.com/smallbiznis/noty/internal/webhook/domain"
	"gorm.io/gorm"
)

// Models lists the persisted models in dependency order.
func Models() []any {
	return []any{
		&billingdomain.Client{},
		&billingdomain.Payment{},
		&notificationdomain.NotificationLog{},
		&notificationdomain.MessageTemplate{},
		&settings.Setting{},
		&trackingdomain.BlockState{},
		&automationdomain.AutomationRun{},
		&webhookdomain.WebhookLog{},
		&events.OutboxEvent{},
	}
}

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
