package webhook

import (
	trackingservice "github.com/smallbiznis/noty/internal/tracking/service"
	"github.com/smallbiznis/noty/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(func(engine *trackingservice.Engine) service.AccessEvaluator { return engine }),
	fx.Provide(service.NewHandler),
)
