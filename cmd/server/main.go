package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pairpad/internal/api"
	"pairpad/internal/config"
	"pairpad/internal/history"
	"pairpad/internal/repository"
	"pairpad/internal/routers"
	"pairpad/internal/session"
	"pairpad/internal/store"
	"pairpad/internal/utils"
)

func main() {
	_ = godotenv.Load()

	logger := utils.GetLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := repository.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	sessionRepo := &repository.SessionRepository{DB: db}
	historyRepo := &repository.HistoryRepository{DB: db}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	st := store.New(sessionRepo, cfg.DedupeRoster)
	registry := session.NewRegistry(cfg.EvictionGrace, st.Evict)
	recorder := history.NewPublisher(rdb)
	hub := session.NewHub(st, registry, recorder, sessionRepo, logger, cfg.FrameRateLimit, cfg.FrameRateBurst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go history.NewSubscriber(rdb, historyRepo, logger).Run(ctx)
	go session.NewMonitor(hub, registry, cfg.PingInterval, cfg.PingTimeout, logger).Run(ctx)

	teardown := func(sessionID string) {
		hub.CloseSession(sessionID)
		st.Evict(sessionID)
	}
	go repository.NewExpirySweeper(sessionRepo, cfg.ExpirySweepInterval, teardown, logger).Run(ctx)

	h := api.NewHandlers(logger, hub, st, sessionRepo, historyRepo, cfg.BaseURL)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	r.Mount("/", routers.New(h))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	addr := ":" + cfg.Port
	log.Printf("pairpad-svc listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
