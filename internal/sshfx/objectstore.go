package sshfx

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/transferd/pkg/objectstore"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

const (
	ConfigObjectStoreToolName = "objectstore.tool_name"
	ConfigObjectStoreConfPath = "objectstore.conf_path"
)

const defaultToolName = "rclone"

type DriverConfig struct {
	ToolName      string
	LocalConfPath string
}

func DriverConfigProvider(v *viper.Viper) *DriverConfig {
	toolName := v.GetString(ConfigObjectStoreToolName)
	if toolName == "" {
		toolName = defaultToolName
	}
	return &DriverConfig{
		ToolName:      toolName,
		LocalConfPath: v.GetString(ConfigObjectStoreConfPath),
	}
}

func StoreDriver(config *DriverConfig, pool *sshpool.Pool, logger *logrus.Logger) *objectstore.Driver {
	return objectstore.New(pool, config.ToolName, config.LocalConfPath, logger)
}
