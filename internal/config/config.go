// Package config loads formcache settings from a YAML file and FORMCACHE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Perscom   PerscomConfig   `mapstructure:"perscom"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
}

type PerscomConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	PerscomID   string        `mapstructure:"perscom_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
	QPS         int           `mapstructure:"qps"`
	RetryMax    int           `mapstructure:"retry_max"`
	FollowPages bool          `mapstructure:"follow_pages"`
}

type CacheConfig struct {
	Provider   string          `mapstructure:"provider"` // ristretto | bigcache | redis | bbolt
	Namespace  string          `mapstructure:"namespace"`
	Codec      string          `mapstructure:"codec"` // json | cbor | msgpack | protobuf
	MaxPayload int             `mapstructure:"max_payload"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Bbolt      BboltConfig     `mapstructure:"bbolt"`
	Bigcache   BigcacheConfig  `mapstructure:"bigcache"`
	Ristretto  RistrettoConfig `mapstructure:"ristretto"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	GenTTL   time.Duration `mapstructure:"gen_ttl"`
	// SharedGens stores generations in Redis too, so Refresh reaches every replica.
	SharedGens bool `mapstructure:"shared_gens"`
}

type BboltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

type BigcacheConfig struct {
	LifeWindow  time.Duration `mapstructure:"life_window"`
	HardMaxMB   int           `mapstructure:"hard_max_mb"`
	CleanWindow time.Duration `mapstructure:"clean_window"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
	BufferItems int64 `mapstructure:"buffer_items"`
}

type DirectoryConfig struct {
	Key          string        `mapstructure:"key"`
	Limit        int           `mapstructure:"limit"`
	SuccessTTL   time.Duration `mapstructure:"success_ttl"`
	FailureTTL   time.Duration `mapstructure:"failure_ttl"`
	SingleFlight bool          `mapstructure:"single_flight"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`  // json | text
	Backend string `mapstructure:"backend"` // zap | logrus | slog | apex
	// Hooks logs cache events (self-heal, provider errors) through slog.
	Hooks bool `mapstructure:"hooks"`
}

type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	Mode         string `mapstructure:"mode"`
	AdminPrefix  string `mapstructure:"admin_prefix"`
	PremiumBuild bool   `mapstructure:"premium"`
}

var (
	providers = []string{"ristretto", "bigcache", "redis", "bbolt"}
	codecs    = []string{"json", "cbor", "msgpack", "protobuf"}
	backends  = []string{"zap", "logrus", "slog", "apex"}
	levels    = []string{"debug", "info", "warn", "error"}
)

func setDefaults(v *viper.Viper) {
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("perscom.base_url", "https://api.perscom.io/v2")
	v.SetDefault("perscom.api_key", "")
	v.SetDefault("perscom.perscom_id", "")
	v.SetDefault("perscom.timeout", "30s")
	v.SetDefault("perscom.qps", 5)
	v.SetDefault("perscom.retry_max", 3)
	v.SetDefault("perscom.follow_pages", false)

	v.SetDefault("cache.provider", "ristretto")
	v.SetDefault("cache.namespace", "perscom")
	v.SetDefault("cache.codec", "json")
	v.SetDefault("cache.max_payload", 4<<20)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.shared_gens", true)
	v.SetDefault("cache.redis.gen_ttl", "720h")
	v.SetDefault("cache.bbolt.path", "formcache.db")
	v.SetDefault("cache.bbolt.bucket", "formcache")
	v.SetDefault("cache.bigcache.life_window", "2h")
	v.SetDefault("cache.bigcache.hard_max_mb", 16)
	v.SetDefault("cache.bigcache.clean_window", "5m")
	v.SetDefault("cache.ristretto.num_counters", 1000)
	v.SetDefault("cache.ristretto.max_cost", 64<<20)
	v.SetDefault("cache.ristretto.buffer_items", 64)

	v.SetDefault("directory.key", "perscom.admin.forms")
	v.SetDefault("directory.limit", 999)
	v.SetDefault("directory.success_ttl", "1h")
	v.SetDefault("directory.failure_ttl", "15m")
	v.SetDefault("directory.single_flight", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.backend", "zap")
	v.SetDefault("log.hooks", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.admin_prefix", "/admin/perscom")
	v.SetDefault("server.premium", false)
}

// Load reads path (when non-empty) or ./formcache.yaml / ./configs/formcache.yaml
// if present, then applies FORMCACHE_* overrides, e.g.
// FORMCACHE_PERSCOM_API_KEY for perscom.api_key.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("formcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FORMCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if !oneOf(c.Cache.Provider, providers) {
		return fmt.Errorf("config: cache.provider %q: want one of %s", c.Cache.Provider, strings.Join(providers, ", "))
	}
	if !oneOf(c.Cache.Codec, codecs) {
		return fmt.Errorf("config: cache.codec %q: want one of %s", c.Cache.Codec, strings.Join(codecs, ", "))
	}
	if !oneOf(c.Log.Backend, backends) {
		return fmt.Errorf("config: log.backend %q: want one of %s", c.Log.Backend, strings.Join(backends, ", "))
	}
	if !oneOf(strings.ToLower(c.Log.Level), levels) {
		return fmt.Errorf("config: log.level %q: want one of %s", c.Log.Level, strings.Join(levels, ", "))
	}
	if c.Cache.Namespace == "" {
		return errors.New("config: cache.namespace is required")
	}
	if c.Directory.SuccessTTL < 0 || c.Directory.FailureTTL < 0 {
		return errors.New("config: directory ttls must not be negative")
	}
	if c.Directory.Limit < 0 {
		return errors.New("config: directory.limit must not be negative")
	}
	if c.Cache.Provider == "bigcache" && c.Cache.Bigcache.LifeWindow < c.Directory.SuccessTTL {
		return fmt.Errorf("config: cache.bigcache.life_window %s is shorter than directory.success_ttl %s",
			c.Cache.Bigcache.LifeWindow, c.Directory.SuccessTTL)
	}
	if c.Cache.Provider == "bbolt" && c.Cache.Bbolt.Path == "" {
		return errors.New("config: cache.bbolt.path is required")
	}
	return nil
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
