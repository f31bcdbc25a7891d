package config

import (
	"log"
	"os"

	"github.com/google/wire"
)

// ProviderSet 配置Provider集合
var ProviderSet = wire.NewSet(
	ProvideConfig,
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "SKER_UCP_CONFIG"

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = "configs/config.json"

// ProvideConfig 提供配置实例
//
// 路径取 SKER_UCP_CONFIG 环境变量，未设置时用默认路径；
// 文件缺失或损坏时回退到内置默认配置。
func ProvideConfig() *Config {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		log.Printf("load config %s: %v, falling back to built-in defaults", path, err)
		return GetDefaultConfig()
	}
	return cfg
}
