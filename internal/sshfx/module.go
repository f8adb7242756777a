package sshfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(PoolConfigProvider),
	fx.Provide(ConnectionPool),
	fx.Provide(DriverConfigProvider),
	fx.Provide(StoreDriver),
	fx.Provide(PlannerLister),
	fx.Provide(Planner),
	fx.Provide(NewSweepCron),
	fx.Invoke(RunIdleSweep),
)
