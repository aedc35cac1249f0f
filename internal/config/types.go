package config

import "time"

// Config is the full YAML configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Pools   []PoolConfig  `mapstructure:"pools"`
	Rules   []RuleConfig  `mapstructure:"rules"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig covers the listeners and the introspection API.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	APIPort     int           `mapstructure:"api_port"`
	LogRequests bool          `mapstructure:"log_requests"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Balancer    string        `mapstructure:"balancer"`
	DBPath      string        `mapstructure:"db_path"`
}

// PoolConfig names a pool and lists its upstream proxies.
type PoolConfig struct {
	Name    string        `mapstructure:"name"`
	Proxies []ProxyConfig `mapstructure:"proxies"`
}

// ProxyConfig is one upstream proxy entry.
type ProxyConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	User      string        `mapstructure:"user"`
	Pass      string        `mapstructure:"pass"`
	Types     []string      `mapstructure:"types"`
	Timeout   time.Duration `mapstructure:"timeout"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
	Geo       string        `mapstructure:"geo"`
}

// RuleConfig binds host patterns on one listener port to candidate pools.
type RuleConfig struct {
	Name    string   `mapstructure:"name"`
	Port    int      `mapstructure:"port"`
	Pools   []string `mapstructure:"pools"`
	Domains []string `mapstructure:"domains"`
}

// LoggingConfig mirrors the logger package's knobs.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Theme string `mapstructure:"theme"`
}
