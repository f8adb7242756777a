package orchestratorfx

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"github.com/yurykabanov/transferd/pkg/dispatcher"
	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/eventbus"
	"github.com/yurykabanov/transferd/pkg/objectstore"
	"github.com/yurykabanov/transferd/pkg/orchestrator"
	"github.com/yurykabanov/transferd/pkg/packager"
	"github.com/yurykabanov/transferd/pkg/planner"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

func EventBus() *eventbus.Bus {
	return eventbus.New()
}

func CloseEventBus(lc fx.Lifecycle, bus *eventbus.Bus) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			bus.Close()
			return nil
		},
	})
}

func Packager(
	pool *sshpool.Pool,
	store *objectstore.Driver,
	storeConfigs domain.ArchiveStoreConfigRepository,
	bus *eventbus.Bus,
	logger *logrus.Logger,
) *packager.Packager {
	return packager.New(pool, store, storeConfigs, bus, logger)
}

func Dispatcher(
	pool *sshpool.Pool,
	store *objectstore.Driver,
	bus *eventbus.Bus,
	logger *logrus.Logger,
) *dispatcher.Dispatcher {
	return dispatcher.New(pool, store, store, bus, logger)
}

func Orchestrator(
	p *planner.Planner,
	pk *packager.Packager,
	d *dispatcher.Dispatcher,
	pool *sshpool.Pool,
	storeConfigs domain.ArchiveStoreConfigRepository,
	jobs domain.JobRepository,
	bus *eventbus.Bus,
	logger *logrus.Logger,
) *orchestrator.Orchestrator {
	return orchestrator.New(p, pk, d, pool, storeConfigs, jobs, bus, logger)
}
