package config

import "go.uber.org/fx"

// Module provides Config loaded from the environment. Commands that need a
// specific file path supply Config themselves with fx.Supply.
var Module = fx.Module("config",
	fx.Provide(func() (Config, error) {
		return Load("")
	}),
)
