package config

import (
	"encoding/json"
	"os"
	"time"
)

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := GetDefaultConfig()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":8080",
			Host:     "127.0.0.1",
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
		Registry: RegistryConfig{
			Type:               "static",
			Address:            "127.0.0.1:8500",
			Endpoints:          []string{"127.0.0.1:2379"},
			ServiceName:        "sker-ucp",
			ServiceID:          "sker-ucp-1",
			Tags:               []string{"ucp"},
			HealthCheckTimeout: 5 * time.Second,
			HealthCheckTTL:     15 * time.Second,
		},
		Discovery: DiscoveryConfig{
			CacheTimeout:        30 * time.Second,
			CacheSweepInterval:  60 * time.Second,
			HealthCheckInterval: 30 * time.Second,
			HealthCheckTimeout:  5 * time.Second,
		},
		Pool: PoolConfig{
			MaxConnectionsPerTarget: 10,
			MinConnections:          2,
			IdleTimeout:             60 * time.Second,
			AcquireTimeout:          5 * time.Second,
			Validation: ValidationConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  3 * time.Second,
			},
			LoadBalancing: LoadBalancingConfig{
				Strategy:    "round-robin",
				HealthCheck: true,
			},
		},
	}
}
