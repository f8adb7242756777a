package sshfx

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

const ConfigPoolIdleTimeout = "sshpool.idle_timeout"

const defaultIdleTimeout = 10 * time.Minute

type PoolConfig struct {
	IdleTimeout time.Duration
}

func PoolConfigProvider(v *viper.Viper) *PoolConfig {
	timeout := v.GetDuration(ConfigPoolIdleTimeout)
	if timeout == 0 {
		timeout = defaultIdleTimeout
	}
	return &PoolConfig{IdleTimeout: timeout}
}

func ConnectionPool(config *PoolConfig, hostRepo domain.HostRepository, logger *logrus.Logger) *sshpool.Pool {
	return sshpool.New(hostRepo, logger, config.IdleTimeout)
}
