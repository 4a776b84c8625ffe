package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"Emporium/internal/auth"
	"Emporium/internal/config"
	"Emporium/internal/shop"
	"Emporium/pkg/kit"
)

const service = "emporium"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("emporium stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	shutdownTracing, err := kit.InitTracing(ctx, service, cfg.TraceExporter, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	store = shop.Instrument(store, shop.NewStoreMetrics(reg))
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			log.Warn("datastore close", zap.Error(err))
		}
	}()

	deps := shop.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
		StaticDir:      cfg.StaticDir,
	}
	if cfg.Auth.Enabled() {
		jwt := auth.NewTokenMaker(cfg.Auth.JWTSecret)
		a := &auth.Server{
			Log:      log,
			Operator: auth.NewOperator(cfg.Auth.OperatorEmail, cfg.Auth.OperatorPasswordHash),
			JWT:      jwt,
		}
		deps.Guard = auth.RequireOperator(jwt)
		deps.Auth = a.Routes()
		log.Info("operator auth enabled", zap.String("operator", a.Operator.Email))
	}

	h := shop.NewHandler(&shop.Server{Store: store, Log: log}, deps)
	return kit.RunHTTPServer(ctx, ":"+strconv.Itoa(cfg.Port), h, log)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (shop.Store, error) {
	store, err := shop.Open(ctx, cfg.DatastoreURL, log)
	if err != nil {
		return nil, err
	}
	if !cfg.Redis.Enabled() {
		return store, nil
	}

	rdb, err := shop.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	log.Info("product cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	return shop.NewCachedStore(store, rdb, cfg.Redis.TTL, log), nil
}
