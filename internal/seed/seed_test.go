package seed

import (
	"context"
	"testing"

	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	"github.com/smallbiznis/noty/internal/testutil"
)

func TestEnsureDefaultsKeepsOperatorEdits(t *testing.T) {
	db := testutil.OpenDB(t, &settings.Setting{}, &notificationdomain.MessageTemplate{})
	node := testutil.NewNode(t)
	ctx := context.Background()

	if err := EnsureDefaults(ctx, db, node); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var settingRows int64
	db.Model(&settings.Setting{}).Count(&settingRows)
	if int(settingRows) != len(settings.Keys()) {
		t.Fatalf("expected %d settings, got %d", len(settings.Keys()), settingRows)
	}
	var templateRows int64
	db.Model(&notificationdomain.MessageTemplate{}).Count(&templateRows)
	if templateRows != int64(len(templateTypes)) {
		t.Fatalf("expected %d templates, got %d", len(templateTypes), templateRows)
	}

	if err := db.Exec("UPDATE settings SET value = ? WHERE key = ?", "5", settings.KeyBlockAfterCount).Error; err != nil {
		t.Fatalf("edit setting: %v", err)
	}
	if err := EnsureDefaults(ctx, db, node); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var row settings.Setting
	if err := db.Where("key = ?", settings.KeyBlockAfterCount).First(&row).Error; err != nil {
		t.Fatalf("load setting: %v", err)
	}
	if row.Value != "5" {
		t.Fatalf("expected operator value to survive, got %q", row.Value)
	}
	db.Model(&notificationdomain.MessageTemplate{}).Count(&templateRows)
	if templateRows != int64(len(templateTypes)) {
		t.Fatalf("expected templates not to duplicate, got %d", templateRows)
	}
}
