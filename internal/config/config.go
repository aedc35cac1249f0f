package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/thushan/pxlb/internal/core/domain"
)

const (
	DefaultHost    = "0.0.0.0"
	DefaultAPIPort = 8181
	DefaultTimeout = 8 * time.Second

	// Small delay so a watch event fires after the file write completes.
	DefaultFileWriteDelay = 150 * time.Millisecond

	reloadDebounce = 500 * time.Millisecond
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			APIPort:     DefaultAPIPort,
			LogRequests: true,
			Timeout:     DefaultTimeout,
			DBPath:      "stats.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			Theme: "default",
		},
	}
}

// Load reads the YAML file at path, applies PXLB_* environment overrides
// and validates the result. A non-nil onConfigChange is invoked, debounced,
// whenever the file changes on disk.
func Load(path string, onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PXLB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	v.WatchConfig()

	if onConfigChange != nil {
		v.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			// lame debounce to avoid rapid-fire reloads
			now := time.Now()
			if now.Sub(lastReload) < reloadDebounce {
				return
			}
			lastReload = now

			// on some platforms the event arrives before the file is
			// fully written
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}

// Validate checks the parts the materialiser relies on.
func (c *Config) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("config has no rules; nothing to listen on")
	}

	poolNames := make(map[string]struct{}, len(c.Pools))
	for _, pool := range c.Pools {
		if pool.Name == "" {
			return fmt.Errorf("pool with no name")
		}
		if _, dup := poolNames[pool.Name]; dup {
			return fmt.Errorf("duplicate pool %q", pool.Name)
		}
		poolNames[pool.Name] = struct{}{}
	}

	for _, rule := range c.Rules {
		if rule.Port < 1 || rule.Port > 65535 {
			return fmt.Errorf("rule %q: port %d out of range", rule.Name, rule.Port)
		}
		if len(rule.Pools) == 0 {
			return fmt.Errorf("rule %q references no pools", rule.Name)
		}
		if len(rule.Domains) == 0 {
			return fmt.Errorf("rule %q has no domain patterns", rule.Name)
		}
		for _, name := range rule.Pools {
			if _, ok := poolNames[name]; !ok {
				return fmt.Errorf("rule %q references unknown pool %q", rule.Name, name)
			}
		}
	}
	return nil
}

// Materialise builds the domain pools and the flattened rule table. Each
// rule × domain pattern becomes one PoolRule ranked by rule order and
// pattern order within the rule.
func (c *Config) Materialise() ([]domain.Pool, []*domain.PoolRule, error) {
	pools := make([]domain.Pool, 0, len(c.Pools))
	for _, pc := range c.Pools {
		pool := domain.Pool{Name: pc.Name}
		for _, proxyCfg := range pc.Proxies {
			proxy, err := domain.NewUpstreamProxy(domain.UpstreamSpec{
				Host:      proxyCfg.Host,
				Port:      proxyCfg.Port,
				Username:  proxyCfg.User,
				Password:  proxyCfg.Pass,
				Types:     proxyCfg.Types,
				Timeout:   proxyCfg.Timeout,
				VerifyTLS: proxyCfg.VerifyTLS,
				GeoCode:   proxyCfg.Geo,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("pool %q: %w", pc.Name, err)
			}
			pool.Proxies = append(pool.Proxies, proxy)
		}
		pools = append(pools, pool)
	}

	var rules []*domain.PoolRule
	for ruleIdx, rc := range c.Rules {
		for subIdx, pattern := range rc.Domains {
			rule, err := domain.NewPoolRule(rc.Name, rc.Port, rc.Pools, pattern, ruleIdx, subIdx)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %q: pattern %q: %w", rc.Name, pattern, err)
			}
			rules = append(rules, rule)
		}
	}
	return pools, rules, nil
}
