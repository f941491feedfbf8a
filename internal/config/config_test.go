package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "formcache.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.perscom.io/v2", cfg.Perscom.BaseURL)
	assert.Equal(t, "ristretto", cfg.Cache.Provider)
	assert.Equal(t, "json", cfg.Cache.Codec)
	assert.Equal(t, "perscom.admin.forms", cfg.Directory.Key)
	assert.Equal(t, 999, cfg.Directory.Limit)
	assert.Equal(t, time.Hour, cfg.Directory.SuccessTTL)
	assert.Equal(t, 15*time.Minute, cfg.Directory.FailureTTL)
	assert.True(t, cfg.Directory.SingleFlight)
	assert.Equal(t, "zap", cfg.Log.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	p := writeFile(t, `
perscom:
  api_key: from-file
  perscom_id: "42"
cache:
  provider: bbolt
  codec: msgpack
  bbolt:
    path: /tmp/forms.db
directory:
  failure_ttl: 5m
log:
  backend: logrus
`)
	t.Setenv("FORMCACHE_PERSCOM_API_KEY", "from-env")
	t.Setenv("FORMCACHE_SERVER_ADDR", ":9999")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Perscom.APIKey)
	assert.Equal(t, "42", cfg.Perscom.PerscomID)
	assert.Equal(t, "bbolt", cfg.Cache.Provider)
	assert.Equal(t, "msgpack", cfg.Cache.Codec)
	assert.Equal(t, "/tmp/forms.db", cfg.Cache.Bbolt.Path)
	assert.Equal(t, 5*time.Minute, cfg.Directory.FailureTTL)
	assert.Equal(t, time.Hour, cfg.Directory.SuccessTTL)
	assert.Equal(t, "logrus", cfg.Log.Backend)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"provider":  func(c *Config) { c.Cache.Provider = "memcached" },
		"codec":     func(c *Config) { c.Cache.Codec = "xml" },
		"backend":   func(c *Config) { c.Log.Backend = "glog" },
		"level":     func(c *Config) { c.Log.Level = "loud" },
		"namespace": func(c *Config) { c.Cache.Namespace = "" },
		"ttl":       func(c *Config) { c.Directory.FailureTTL = -time.Second },
		"limit":     func(c *Config) { c.Directory.Limit = -1 },
		"bigcache": func(c *Config) {
			c.Cache.Provider = "bigcache"
			c.Cache.Bigcache.LifeWindow = time.Minute
		},
		"bbolt": func(c *Config) {
			c.Cache.Provider = "bbolt"
			c.Cache.Bbolt.Path = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
