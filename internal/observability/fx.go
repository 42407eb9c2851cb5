package observability

import (
	"github.com/smallbiznis/noty/internal/observability/logger"
	"github.com/smallbiznis/noty/internal/observability/metrics"
	"github.com/smallbiznis/noty/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(metrics.ConfigFrom),
	fx.Provide(metrics.Automation),
	fx.Provide(func(cfg metrics.Config) (*metrics.HTTPMetrics, error) {
		return metrics.NewHTTPMetrics(cfg, otel.GetMeterProvider())
	}),
	fx.Invoke(tracing.NewProvider),
)
