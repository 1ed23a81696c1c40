package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/open-builders/giveaway-engine/internal/common/async"
	"github.com/open-builders/giveaway-engine/internal/common/config"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
	"github.com/open-builders/giveaway-engine/internal/common/middleware"
	giveawayhttp "github.com/open-builders/giveaway-engine/internal/features/giveaway/delivery/http"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/models"
	giveawaypg "github.com/open-builders/giveaway-engine/internal/features/giveaway/repository/postgres"
	giveawayredis "github.com/open-builders/giveaway-engine/internal/features/giveaway/repository/redis"
	"github.com/open-builders/giveaway-engine/internal/features/giveaway/service"
	"github.com/open-builders/giveaway-engine/internal/platform/postgres"
	"github.com/open-builders/giveaway-engine/internal/platform/redis"
	"github.com/open-builders/giveaway-engine/internal/platform/telegram"
	"github.com/open-builders/giveaway-engine/internal/workers"
)

// @title           Giveaway Engine API
// @version         1.0
// @description     Lifecycle engine for community giveaways: creation, entries, draws and scheduling.

// @BasePath  /api/v1

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name init_data
// @description Telegram Mini App init_data identifying the host

// @securityDefinitions.apikey APIKey
// @in header
// @name X-API-Key

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.Debug)
	logger.Info().Bool("debug", cfg.Debug).Msg("Starting giveaway engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	defaultPreset := presetFromConfig(cfg.DefaultPreset)
	if err := defaultPreset.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid default preset")
	}

	stores := service.Stores{
		Giveaways:   giveawayredis.NewGiveawayStore(rdb),
		Communities: giveawayredis.NewCommunityStore(rdb),
		Users:       giveawayredis.NewUserStore(rdb),
		Scheduled:   giveawayredis.NewScheduledStore(rdb),
		Finished:    giveawaypg.NewFinishedRepository(db),
	}
	pools := async.NewPools(cfg.Giveaway.StorageWorkers, cfg.Giveaway.PlatformWorkers, cfg.Giveaway.SchedulerWorkers)
	caches := service.NewCaches(stores, pools.Storage, cfg.Giveaway.IdleTTL)

	tg := telegram.NewClient(cfg.Telegram)
	latency := telegram.NewLatencyMonitor(tg, cfg.Telegram.LatencyInterval, cfg.Telegram.UsableLatency)
	latency.Start(ctx)

	controller := service.NewController(service.Deps{
		Config:        cfg.Giveaway,
		DefaultPreset: defaultPreset,
		Caches:        caches,
		Stores:        stores,
		Platform:      tg,
		Probe:         latency,
		Pools:         pools,
	})
	pipeline := service.NewPipeline(caches, pools.Storage, defaultPreset)

	if err := controller.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start controller")
	}

	worker := workers.NewRedisStreamWorker(rdb, pipeline, workers.StreamConfig{
		Stream:   cfg.Redis.EventStream,
		Group:    cfg.Redis.ConsumerGroup,
		Consumer: cfg.Redis.ConsumerName,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Start(ctx)
	}()

	router := newRouter(cfg, controller, pipeline, map[string]giveawayhttp.Check{
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"postgres": db.PingContext,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Giveaway.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	<-workerDone
	latency.Stop()

	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to drain caches")
	}
	if err := pools.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Worker pools did not finish")
	}

	logger.Info().Msg("Server exited")
}

func newRouter(
	cfg *config.Config,
	controller *service.Controller,
	pipeline *service.Pipeline,
	checks map[string]giveawayhttp.Check,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "X-API-Key", "X-Request-ID", "init_data"}
	router.Use(cors.New(corsConfig))

	giveawayhttp.NewHealthHandler(checks).RegisterRoutes(router)

	v1 := router.Group("/api/v1",
		middleware.RequireAPIKey(cfg.Server.APIKey),
		middleware.TelegramInitData(cfg.Telegram.BotToken, cfg.Telegram.InitDataTTL),
	)
	giveawayhttp.NewGiveawayHandler(controller, pipeline).RegisterRoutes(v1)
	return router
}

func presetFromConfig(p config.PresetConfig) models.Preset {
	return models.Preset{
		Name:                 models.DefaultPresetName,
		EnableReactToEnter:   p.EnableReactToEnter,
		ReactToEnterEmoji:    p.ReactToEnterEmoji,
		EnableMessageEntries: p.EnableMessageEntries,
		EntriesPerMessage:    p.EntriesPerMessage,
		EnableInviteEntries:  p.EnableInviteEntries,
		EntriesPerInvite:     p.EntriesPerInvite,
		MaxEntries:           p.MaxEntries,
		PingWinners:          p.PingWinners,
	}
}
