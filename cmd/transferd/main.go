package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/transferd/internal/api"
	"github.com/yurykabanov/transferd/internal/configfx"
	"github.com/yurykabanov/transferd/internal/loggerfx"
	"github.com/yurykabanov/transferd/internal/metricsfx"
	"github.com/yurykabanov/transferd/internal/orchestratorfx"
	"github.com/yurykabanov/transferd/internal/sqlfx"
	"github.com/yurykabanov/transferd/internal/sshfx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(15*time.Second),
		fx.StopTimeout(15*time.Second),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		sshfx.Module,
		orchestratorfx.Module,
		metricsfx.Module,
		api.Module,
	)

	app.Run()
}
