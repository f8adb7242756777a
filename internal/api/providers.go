package api

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/http/handler"
	"github.com/yurykabanov/transferd/pkg/orchestrator"
	"github.com/yurykabanov/transferd/pkg/secretbox"
)

const ConfigSecretBoxKey = "secretbox.key"

type SecretBoxConfig struct {
	Key string
}

func SecretBoxConfigProvider(v *viper.Viper) *SecretBoxConfig {
	return &SecretBoxConfig{Key: v.GetString(ConfigSecretBoxKey)}
}

func SecretBox(config *SecretBoxConfig) *secretbox.Box {
	return secretbox.New(config.Key)
}

func HostHandler(repo domain.HostRepository, jobs domain.JobRepository, box *secretbox.Box, logger *logrus.Logger) *handler.HostHandler {
	return handler.NewHostHandler(repo, jobs, box, logger)
}

func StoreConfigHandler(repo domain.ArchiveStoreConfigRepository, logger *logrus.Logger) *handler.StoreConfigHandler {
	return handler.NewStoreConfigHandler(repo, logger)
}

func JobHandler(repo domain.JobRepository, runner *orchestrator.Orchestrator, logger *logrus.Logger) *handler.JobHandler {
	return handler.NewJobHandler(repo, runner, logger)
}

func SessionHandler(repo domain.SessionRepository, logger *logrus.Logger) *handler.SessionHandler {
	return handler.NewSessionHandler(repo, logger)
}

// RegisterRoutes mounts every CRUD surface onto the shared HTTP router
// provided by internal/metricsfx.
func RegisterRoutes(
	router *mux.Router,
	hosts *handler.HostHandler,
	storeConfigs *handler.StoreConfigHandler,
	jobs *handler.JobHandler,
	sessions *handler.SessionHandler,
) {
	hosts.RegisterRoutes(router)
	storeConfigs.RegisterRoutes(router)
	jobs.RegisterRoutes(router)
	sessions.RegisterRoutes(router)
}
