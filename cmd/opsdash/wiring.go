package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/opscache"
	"github.com/unkn0wn-root/opscache/config"
	"github.com/unkn0wn-root/opscache/genstore"
	logruslog "github.com/unkn0wn-root/opscache/log/logrus"
	slogx "github.com/unkn0wn-root/opscache/log/slog"
	zaplog "github.com/unkn0wn-root/opscache/log/zap"
	pr "github.com/unkn0wn-root/opscache/provider"
	bcprovider "github.com/unkn0wn-root/opscache/provider/bigcache"
	redisprovider "github.com/unkn0wn-root/opscache/provider/redis"
	rprovider "github.com/unkn0wn-root/opscache/provider/ristretto"
	sqliteprovider "github.com/unkn0wn-root/opscache/provider/sqlite"
	"github.com/unkn0wn-root/opscache/sloghooks"
)

// newLogger returns the configured opscache logger, the slog logger used by
// hooks and a flush func to run on exit.
func newLogger(cfg config.Config) (opscache.Logger, *slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, nil, err
	}
	hookLog := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	switch cfg.LogBackend {
	case "logrus":
		l, err := logruslog.New(os.Stderr, cfg.LogLevel)
		return l, hookLog, func() {}, err
	case "slog":
		l, err := slogx.New(os.Stderr, cfg.LogLevel)
		return l, hookLog, func() {}, err
	default:
		l, err := zaplog.New(cfg.LogLevel)
		if err != nil {
			return nil, nil, nil, err
		}
		return l, hookLog, func() { _ = l.Sync() }, nil
	}
}

func newHooks(l *slog.Logger) opscache.Hooks {
	return sloghooks.New(l, sloghooks.Options{
		JoinEvery:         10,
		PlainResourceKeys: true,
	})
}

type stores struct {
	token, general pr.Provider
	rdb            goredis.UniversalClient // set when a store lives in Redis
}

// openStores opens one provider per distinct backend; when both stores use
// the same backend they share it.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	opened := map[string]pr.Provider{}
	st := &stores{}
	open := func(backend string) (pr.Provider, error) {
		if p, ok := opened[backend]; ok {
			return p, nil
		}
		var (
			p   pr.Provider
			err error
		)
		switch backend {
		case config.BackendSQLite:
			p, err = sqliteprovider.Open(cfg.SQLitePath)
		case config.BackendRedis:
			var r *redisprovider.Redis
			r, err = redisprovider.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
			if err == nil {
				st.rdb = r.Client()
				p = r
			}
		case config.BackendBigcache:
			p, err = bcprovider.New(ctx, bcprovider.Config{})
		case config.BackendRistretto:
			p, err = rprovider.New(rprovider.Config{})
		default:
			err = fmt.Errorf("unknown backend %q", backend)
		}
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", backend, err)
		}
		opened[backend] = p
		return p, nil
	}

	var err error
	if st.token, err = open(cfg.TokenBackend); err != nil {
		return nil, err
	}
	if st.general, err = open(cfg.GeneralBackend); err != nil {
		_ = st.token.Close(ctx)
		return nil, err
	}
	return st, nil
}

// revisions keeps the session revision next to the data when Redis is in
// use, so a restarted process continues the sequence.
func (s *stores) revisions(cfg config.Config) genstore.GenStore {
	if cfg.Uses(config.BackendRedis) && s.rdb != nil {
		return genstore.NewRedisGenStore(s.rdb, cfg.Namespace)
	}
	return genstore.NewLocalGenStore()
}
