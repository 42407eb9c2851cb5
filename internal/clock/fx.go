package clock

import (
	"time"

	"github.com/smallbiznis/noty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock {
		return SystemClock{}
	}),
	fx.Provide(func(cfg config.Config, log *zap.Logger) Calendar {
		loc, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			log.Warn("invalid time zone, falling back to UTC", zap.String("time_zone", cfg.TimeZone), zap.Error(err))
			loc = time.UTC
		}
		return NewCalendar(loc)
	}),
)
