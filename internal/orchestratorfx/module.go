package orchestratorfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(EventBus),
	fx.Provide(Packager),
	fx.Provide(Dispatcher),
	fx.Provide(Orchestrator),
	fx.Invoke(CloseEventBus),
)
