package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniMarket/internal/config"
	"MiniMarket/internal/indexer"
	"MiniMarket/pkg/kit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := kit.NewLogger("indexer", cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateIndexer(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := indexer.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	db := indexer.NewPostgresStore(pool)
	if err := db.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(kit.Recoverer(log))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			log.Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/products", func(w http.ResponseWriter, r *http.Request) {
		dep := r.URL.Query().Get("deployment")
		if dep == "" {
			latest, err := db.LatestDeployment(r.Context())
			if err != nil {
				log.Error("latest deployment failed", zap.Error(err))
				kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
				return
			}
			dep = latest
		}

		products, err := db.Products(r.Context(), dep)
		if err != nil {
			log.Error("list products failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
			return
		}
		kit.WriteJSON(w, http.StatusOK, products)
	})

	go func() {
		if err := kit.RunHTTPServer(ctx, cfg.HTTPAddr, r, log); err != nil {
			log.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	c := indexer.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic, log)
	log.Info("indexer consuming", zap.String("topic", cfg.KafkaTopic), zap.String("group", cfg.KafkaGroup))
	if err := c.Run(ctx, db); err != nil {
		log.Fatal("consumer stopped", zap.Error(err))
	}
}
