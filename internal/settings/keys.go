package settings

import (
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	KeyTraccarEnabled          = "traccar_enabled"
	KeyAutoBlockEnabled        = "auto_block_enabled"
	KeyBlockAfterCount         = "block_after_count"
	KeyUnblockOnPayment        = "unblock_on_payment"
	KeyAutoBlockWhitelist      = "auto_block_whitelist"
	KeyNotificationsEnabled    = "notifications_enabled"
	KeyWarningDaysBefore       = "warning_days_before"
	KeyOverdueMaxNotifications = "overdue_max_notifications"

	KeyScheduleSync     = "schedule.sync"
	KeyScheduleWarnings = "schedule.warnings"
	KeyScheduleOverdue  = "schedule.overdue"
	KeyScheduleBlock    = "schedule.block"
)

type kind int

const (
	kindBool kind = iota
	kindInt
	kindList
	kindSchedule
)

type definition struct {
	kind     kind
	fallback string
}

var definitions = map[string]definition{
	KeyTraccarEnabled:          {kind: kindBool, fallback: "false"},
	KeyAutoBlockEnabled:        {kind: kindBool, fallback: "false"},
	KeyBlockAfterCount:         {kind: kindInt, fallback: "3"},
	KeyUnblockOnPayment:        {kind: kindBool, fallback: "true"},
	KeyAutoBlockWhitelist:      {kind: kindList, fallback: ""},
	KeyNotificationsEnabled:    {kind: kindBool, fallback: "true"},
	KeyWarningDaysBefore:       {kind: kindInt, fallback: "0"},
	KeyOverdueMaxNotifications: {kind: kindInt, fallback: "0"},
	KeyScheduleSync:            {kind: kindSchedule, fallback: "0 6 * * *"},
	KeyScheduleWarnings:        {kind: kindSchedule, fallback: "0 9 * * *"},
	KeyScheduleOverdue:         {kind: kindSchedule, fallback: "0 10 * * *"},
	KeyScheduleBlock:           {kind: kindSchedule, fallback: "30 10 * * *"},
}

// Default returns the built-in value of a known key.
func Default(key string) (string, bool) {
	def, ok := definitions[key]
	if !ok {
		return "", false
	}
	return def.fallback, true
}

// Keys lists every known setting key.
func Keys() []string {
	keys := make([]string, 0, len(definitions))
	for key := range definitions {
		keys = append(keys, key)
	}
	return keys
}

func validate(key, value string) error {
	def, ok := definitions[key]
	if !ok {
		return ErrUnknownSetting
	}
	switch def.kind {
	case kindBool:
		if _, err := parseBool(value); err != nil {
			return ErrInvalidValue
		}
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return ErrInvalidValue
		}
		if key == KeyBlockAfterCount && n < 1 {
			return ErrInvalidValue
		}
	case kindSchedule:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		if _, err := cron.ParseStandard(strings.TrimSpace(value)); err != nil {
			return ErrInvalidValue
		}
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, ErrInvalidValue
}

// ParseList splits a list value. Both "a,b" and `["a","b"]` are accepted.
func ParseList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\n', '\t', '[', ']', '"':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}
