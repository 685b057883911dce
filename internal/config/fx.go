package config

import "go.uber.org/fx"

// Module provides the environment-backed Config and the catalog.yml holder.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCatalogHolder),
)
