package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"MiniMarket/internal/api"
	"MiniMarket/internal/auth"
	"MiniMarket/internal/chain"
	"MiniMarket/internal/config"
	"MiniMarket/internal/events"
	"MiniMarket/internal/identity"
	"MiniMarket/internal/store"
	"MiniMarket/pkg/kit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := kit.NewLogger(cfg.ServiceName, cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	owner, err := identity.Parse(cfg.OwnerAddress)
	if err != nil {
		log.Fatal("invalid OWNER_ADDRESS", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sinks := []events.Sink{events.NewMetricsSink(reg)}
	var checks []api.Check

	if len(cfg.KafkaBrokers) > 0 {
		ks := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = ks.Close() }()
		sinks = append(sinks, ks)
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		rs := events.NewRedisSink(rdb, cfg.RedisChannel)
		sinks = append(sinks, rs)
		checks = append(checks, api.Check{Name: "redis", Ping: rs.Ping})
	}

	bus := events.NewBus(cfg.ServiceName, log, sinks...)
	bus.Start(ctx)
	defer bus.Close()

	balances, err := genesis(cfg.Balances)
	if err != nil {
		log.Fatal("invalid genesis balances", zap.Error(err))
	}
	ch := chain.New(chain.WithAutomine(cfg.Automine), chain.WithBalances(balances))

	st := store.New(owner,
		store.WithNotifier(bus),
		store.WithReturnWindow(cfg.ReturnWindow),
	)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "store_escrow_balance",
		Help: "Value held for purchases that were not returned",
	}, func() float64 { return float64(st.Escrow()) }))

	log.Info("store deployed",
		zap.String("owner", string(owner)),
		zap.String("deployment", bus.Deployment()),
		zap.Uint64("return_window", st.ReturnWindow()),
		zap.Int("sinks", len(sinks)),
	)

	h := api.NewHandler(&api.Server{
		Store:  st,
		Chain:  ch,
		Events: bus,
		Log:    log,
	}, api.HTTPDeps{
		Log:            log,
		Service:        cfg.ServiceName,
		Registry:       reg,
		Tokens:         auth.NewTokenMaker(cfg.JWTSecret),
		Limiter:        kit.NewKeyedLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Checks:         checks,
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
		DevMode:        cfg.DevMode,
	})

	if err := kit.RunHTTPServer(ctx, cfg.HTTPAddr, h, log); err != nil {
		log.Error("http server stopped", zap.Error(err))
		bus.Close()
		os.Exit(1)
	}
}

func genesis(in map[string]uint64) (map[store.Address]uint64, error) {
	out := make(map[store.Address]uint64, len(in))
	for raw, v := range in {
		a, err := identity.Parse(raw)
		if err != nil {
			return nil, err
		}
		out[a] = v
	}
	return out, nil
}
