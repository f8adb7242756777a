package api

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(SecretBoxConfigProvider),
	fx.Provide(SecretBox),
	fx.Provide(HostHandler),
	fx.Provide(StoreConfigHandler),
	fx.Provide(JobHandler),
	fx.Provide(SessionHandler),
	fx.Invoke(RegisterRoutes),
)
