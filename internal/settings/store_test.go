package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/noty/internal/cache"
	"github.com/smallbiznis/noty/internal/config"
	"github.com/smallbiznis/noty/internal/testutil"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.OpenDB(t, &Setting{})
	cfg := config.Config{Settings: config.SettingsConfig{CacheTTL: time.Minute}}
	return NewStore(Params{DB: db, Log: zap.NewNop(), Cfg: cfg, Cache: cache.NewTTLCache[string, string]()})
}

func TestStoreDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.Int(ctx, KeyBlockAfterCount)
	if err != nil {
		t.Fatalf("int: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected default block_after_count 3, got %d", count)
	}
	unblock, err := store.Bool(ctx, KeyUnblockOnPayment)
	if err != nil {
		t.Fatalf("bool: %v", err)
	}
	if !unblock {
		t.Fatalf("expected unblock_on_payment default true")
	}
}

func TestStoreSetInvalidatesCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Int(ctx, KeyBlockAfterCount); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if err := store.Set(ctx, KeyBlockAfterCount, "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	count, err := store.Int(ctx, KeyBlockAfterCount)
	if err != nil {
		t.Fatalf("int: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected fresh value 5, got %d", count)
	}

	if err := store.Set(ctx, KeyBlockAfterCount, "7"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if all[KeyBlockAfterCount] != "7" {
		t.Fatalf("expected overwritten value, got %q", all[KeyBlockAfterCount])
	}
	if all[KeyNotificationsEnabled] != "true" {
		t.Fatalf("expected defaults to be listed, got %q", all[KeyNotificationsEnabled])
	}
}

func TestStoreValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		key   string
		value string
		want  error
	}{
		{key: "nope", value: "1", want: ErrUnknownSetting},
		{key: KeyAutoBlockEnabled, value: "maybe", want: ErrInvalidValue},
		{key: KeyBlockAfterCount, value: "0", want: ErrInvalidValue},
		{key: KeyWarningDaysBefore, value: "-1", want: ErrInvalidValue},
		{key: KeyScheduleBlock, value: "every now and then", want: ErrInvalidValue},
		{key: KeyScheduleBlock, value: "*/15 * * * *", want: nil},
	}
	for _, tc := range cases {
		err := store.Set(ctx, tc.key, tc.value)
		if !errors.Is(err, tc.want) {
			t.Fatalf("set %s=%q: expected %v, got %v", tc.key, tc.value, tc.want, err)
		}
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(`["12", "34"]`)
	if len(got) != 2 || got[0] != "12" || got[1] != "34" {
		t.Fatalf("unexpected json list parse: %v", got)
	}
	got = ParseList("a, b;c")
	if len(got) != 3 {
		t.Fatalf("unexpected csv list parse: %v", got)
	}
	if len(ParseList("")) != 0 {
		t.Fatalf("expected empty list")
	}
}
