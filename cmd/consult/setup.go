package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/consult"
	"github.com/aretw0/consult/internal/config"
	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/adapters/file"
	"github.com/aretw0/consult/pkg/adapters/redis"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/spf13/cobra"
)

var noHooks = domain.LifecycleHooks{}

// loadConfig reads the configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if svc, _ := cmd.Flags().GetString("service"); svc != "" {
		cfg.Service.URL = svc
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWriter(w, level, cfg.Log.Format), nil
}

// newClient wires the configured store, locker and service into a Client.
// The returned closer releases the store connection.
func newClient(cfg *config.Config, logger *slog.Logger, hooks domain.LifecycleHooks) (*consult.Client, func() error, error) {
	opts := []consult.Option{
		consult.WithLogger(logger),
		consult.WithCatalog(cfg.Catalog()),
		consult.WithLifecycleHooks(hooks),
		consult.WithToken(cfg.Service.Token),
		consult.WithTimeout(cfg.Service.Timeout),
		consult.WithAutoTrace(cfg.Session.AutoTrace),
		consult.WithLockTimeouts(cfg.Session.LockTTL, cfg.Session.LockWait),
	}

	closer := func() error { return nil }
	switch cfg.Store.Driver {
	case config.DriverFile:
		opts = append(opts, consult.WithStore(file.New(cfg.Store.Dir)))
		logger.Info("Using file session store", "dir", cfg.Store.Dir)
	case config.DriverRedis:
		rc := cfg.Store.Redis
		store := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix), redis.WithTTL(rc.TTL))
		locker := redis.NewLocker(store.Client(), store.Prefix())
		opts = append(opts, consult.WithStore(store), consult.WithLocker(locker))
		closer = store.Close
		logger.Info("Using redis session store", "addr", rc.Addr, "prefix", store.Prefix())
	}

	client, err := consult.New(cfg.Service.URL, opts...)
	if err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("error initializing consult: %w", err)
	}
	return client, closer, nil
}

func stderrLogger(cfg *config.Config) (*slog.Logger, error) {
	return newLogger(cfg, os.Stderr)
}
