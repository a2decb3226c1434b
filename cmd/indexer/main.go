package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/config"
	cronrunner "sonicindexer/internal/cron"
	"sonicindexer/internal/db"
	"sonicindexer/internal/handler"
	"sonicindexer/internal/indexer"
	"sonicindexer/internal/logger"
	"sonicindexer/internal/metrics"
	gormrepository "sonicindexer/internal/repository/gorm"
	"sonicindexer/internal/service"
)

func main() {
	cfgPath := os.Getenv("SI_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SI_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	marketsHandler := &handler.MarketsHandler{Repo: store}
	marketsHandler.Register(engine)
	usersHandler := &handler.UsersHandler{Repo: store}
	usersHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Repo: store}
	statsHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(cfg.Chains)+1)

	if len(cfg.Chains) == 0 {
		logger.Warn("no chains configured, serving API only")
	}
	for _, chainCfg := range cfg.Chains {
		src, err := buildSource(chainCfg, logger)
		if err != nil {
			logger.Fatal("source init failed", zap.Uint64("chain_id", chainCfg.ChainID), zap.Error(err))
		}
		eng := indexer.NewEngine(chainCfg.ChainID, src, store, logger, cfg.Indexer)
		go func(chainID uint64) {
			logger.Info("indexing engine starting", zap.Uint64("chain_id", chainID))
			if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(chainCfg.ChainID)
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		integrity := &service.IntegrityService{
			Repo:     store,
			Logger:   logger,
			ChainIDs: chainIDs(cfg.Chains),
		}
		if _, err := cronRunner.Add(cfg.Cron.IntegrityCheck, func(ctx context.Context) {
			if err := integrity.RunOnce(ctx); err != nil {
				logger.Warn("integrity check failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register integrity check failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("fatal component error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildSource(cfg config.ChainConfig, logger *zap.Logger) (chain.Source, error) {
	switch strings.ToLower(cfg.Source.Kind) {
	case "ws":
		return chain.NewWSSource(chain.WSSourceOptions{
			ChainID:    cfg.ChainID,
			URL:        cfg.Source.URL,
			BufferSize: cfg.Source.BufferSize,
			Logger:     logger,
		}), nil
	case "nats":
		return chain.NewNATSSource(chain.NATSSourceOptions{
			ChainID:    cfg.ChainID,
			URL:        cfg.Source.URL,
			Stream:     cfg.Source.Stream,
			Subject:    cfg.Source.Subject,
			Durable:    cfg.Source.Durable,
			BufferSize: cfg.Source.BufferSize,
			Logger:     logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown source kind %q for chain %d", cfg.Source.Kind, cfg.ChainID)
}

func chainIDs(chains []config.ChainConfig) []uint64 {
	ids := make([]uint64, 0, len(chains))
	for _, c := range chains {
		ids = append(ids, c.ChainID)
	}
	return ids
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
