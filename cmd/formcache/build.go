package main

import (
	"context"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"strings"

	apexlog "github.com/apex/log"
	apexjson "github.com/apex/log/handlers/json"
	apextext "github.com/apex/log/handlers/text"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/formcache"
	asynchook "github.com/unkn0wn-root/formcache/hooks/async"
	"github.com/unkn0wn-root/formcache/directory"
	"github.com/unkn0wn-root/formcache/genstore"
	"github.com/unkn0wn-root/formcache/internal/config"
	"github.com/unkn0wn-root/formcache/log/apex"
	logruslog "github.com/unkn0wn-root/formcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/formcache/log/slog"
	zaplog "github.com/unkn0wn-root/formcache/log/zap"
	"github.com/unkn0wn-root/formcache/provider"
	"github.com/unkn0wn-root/formcache/provider/bbolt"
	"github.com/unkn0wn-root/formcache/provider/bigcache"
	"github.com/unkn0wn-root/formcache/provider/redis"
	"github.com/unkn0wn-root/formcache/provider/ristretto"
	"github.com/unkn0wn-root/formcache/sloghooks"
	"github.com/unkn0wn-root/formcache/source/perscom"
)

// runtime holds everything a subcommand needs and releases it on Close.
type runtime struct {
	cfg   *config.Config
	log   formcache.Logger
	cache formcache.Cache[directory.FormDirectory]
	dir   *directory.Directory

	closers []func()
}

func (r *runtime) Close(ctx context.Context) {
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			r.log.Warn("cache close failed", formcache.Fields{"err": err})
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func build(cfg *config.Config) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
		}
	}()

	logger, sync, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return rt, err
	}
	rt.log = logger
	rt.closers = append(rt.closers, sync)

	var hooks formcache.Hooks
	if cfg.Log.Hooks {
		sl := stdslog.New(stdslog.NewJSONHandler(os.Stderr, &stdslog.HandlerOptions{Level: slogLevel(cfg.Log.Level)}))
		ah := asynchook.New(sloghooks.New(sl, sloghooks.Options{SelfHealEvery: 10, LoadedEvery: 100}), 1, 256)
		rt.closers = append(rt.closers, ah.Close)
		hooks = ah
	}

	prov, gens, err := newStores(cfg.Cache)
	if err != nil {
		return rt, err
	}

	cd, err := directory.NewCodec(cfg.Cache.Codec, cfg.Cache.MaxPayload)
	if err != nil {
		_ = prov.Close(context.Background())
		return rt, err
	}

	cache, err := formcache.New(formcache.Options[directory.FormDirectory]{
		Namespace:           cfg.Cache.Namespace,
		Provider:            prov,
		Codec:               cd,
		Logger:              logger,
		Hooks:               hooks,
		GenStore:            gens,
		DisableSingleFlight: !cfg.Directory.SingleFlight,
	})
	if err != nil {
		_ = prov.Close(context.Background())
		return rt, err
	}
	rt.cache = cache

	src, err := perscom.New(perscom.Config{
		BaseURL:     cfg.Perscom.BaseURL,
		APIKey:      cfg.Perscom.APIKey,
		PerscomID:   cfg.Perscom.PerscomID,
		Timeout:     cfg.Perscom.Timeout,
		QPS:         cfg.Perscom.QPS,
		RetryMax:    cfg.Perscom.RetryMax,
		FollowPages: cfg.Perscom.FollowPages,
		Logger:      logger,
	})
	if err != nil {
		return rt, err
	}

	rt.dir, err = directory.New(directory.Options{
		Source:     src,
		Cache:      cache,
		Key:        cfg.Directory.Key,
		Limit:      cfg.Directory.Limit,
		SuccessTTL: cfg.Directory.SuccessTTL,
		FailureTTL: cfg.Directory.FailureTTL,
		Logger:     logger,
	})
	return rt, err
}

// newStores opens the configured byte store. A nil GenStore means the cache
// keeps generations in process.
func newStores(c config.CacheConfig) (provider.Provider, genstore.GenStore, error) {
	switch c.Provider {
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{
			NumCounters: c.Ristretto.NumCounters,
			MaxCost:     c.Ristretto.MaxCost,
			BufferItems: c.Ristretto.BufferItems,
		})
		return p, nil, err
	case "bigcache":
		p, err := bigcache.New(bigcache.Config{
			LifeWindow:         c.Bigcache.LifeWindow,
			CleanWindow:        c.Bigcache.CleanWindow,
			HardMaxCacheSizeMB: c.Bigcache.HardMaxMB,
		})
		return p, nil, err
	case "bbolt":
		p, err := bbolt.Open(bbolt.Config{Path: c.Bbolt.Path, Bucket: c.Bbolt.Bucket})
		return p, nil, err
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
		p, err := redis.New(redis.Config{Client: rdb, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		if !c.Redis.SharedGens {
			return p, nil, nil
		}
		// the provider owns the client; the gen store borrows it
		return p, genstore.NewRedisGenStore(genstore.RedisConfig{
			Client:    rdb,
			Namespace: c.Namespace,
			TTL:       c.Redis.GenTTL,
		}), nil
	default:
		return nil, nil, fmt.Errorf("unknown cache provider %q", c.Provider)
	}
}

// newLogger builds the configured logging backend. The returned func flushes it.
func newLogger(c config.LogConfig, w io.Writer) (formcache.Logger, func(), error) {
	level := strings.ToLower(c.Level)
	text := c.Format == "text"

	switch c.Backend {
	case "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc := zapcore.NewJSONEncoder(encCfg)
		if text {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		l := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
		return zaplog.ZapLogger{L: l}, func() { _ = l.Sync() }, nil

	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		if text {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, func() {}, nil

	case "slog":
		opts := &stdslog.HandlerOptions{Level: slogLevel(level)}
		var h stdslog.Handler = stdslog.NewJSONHandler(w, opts)
		if text {
			h = stdslog.NewTextHandler(w, opts)
		}
		return slogadapter.Logger{L: stdslog.New(h)}, func() {}, nil

	case "apex":
		lvl, err := apexlog.ParseLevel(level)
		if err != nil {
			return nil, nil, err
		}
		var h apexlog.Handler = apexjson.New(w)
		if text {
			h = apextext.New(w)
		}
		return apex.Logger{L: &apexlog.Logger{Handler: h, Level: lvl}}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", c.Backend)
	}
}

func slogLevel(s string) stdslog.Level {
	var l stdslog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return stdslog.LevelInfo
	}
	return l
}
