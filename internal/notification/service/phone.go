package service

import (
	"strings"

	"github.com/smallbiznis/noty/internal/notification/domain"
)

// NormalizePhone converts a stored phone number to E.164. Numbers written
// without a country code (10 or 11 digits) get the default one.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrMissingPhone
	}
	international := strings.HasPrefix(raw, "+")

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return "", domain.ErrMissingPhone
	}

	if !international {
		number = strings.TrimPrefix(number, "00")
		number = strings.TrimLeft(number, "0")
		cc := strings.TrimLeft(strings.TrimSpace(defaultCountryCode), "+")
		if len(number) <= 11 && cc != "" {
			number = cc + number
		}
	}

	if len(number) < 10 || len(number) > 15 {
		return "", domain.ErrInvalidPhone
	}
	return "+" + number, nil
}
