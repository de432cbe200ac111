package app

import (
	"context"
	"time"

	"avatarsignal/cmd/signal-service/internal/biz"
	"avatarsignal/cmd/signal-service/internal/conf"
	"avatarsignal/cmd/signal-service/internal/data"
	"avatarsignal/cmd/signal-service/internal/infra"
	"avatarsignal/cmd/signal-service/internal/server"
	"avatarsignal/cmd/signal-service/internal/service"
	"avatarsignal/pkg/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App 应用程序
type App struct {
	Logger     *zap.Logger
	HTTPServer *server.HTTPServer
	Redis      *redis.Client
	Sessions   *biz.SessionUsecase
}

// Cleanup 清理资源
func (a *App) Cleanup() error {
	a.Logger.Info("Cleaning up resources...")

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close redis", zap.Error(err))
		}
	}

	return nil
}

// Start 启动应用
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("Application started successfully")
	return nil
}

// InitApp 组装全部依赖。Redis 与远端评分器按配置可选。
func InitApp(config *conf.Config, logger *zap.Logger) (*App, error) {
	kratosLogger := logging.NewKratosLogger(logger)

	// Redis（可选）
	var redisClient *redis.Client
	var cache biz.SnapshotCache
	var readiness server.ReadinessChecker
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         config.Redis.Addr,
			Password:     config.Redis.Password,
			DB:           config.Redis.DB,
			PoolSize:     config.Redis.PoolSize,
			MinIdleConns: config.Redis.MinIdleConns,
			MaxRetries:   config.Redis.MaxRetries,
			DialTimeout:  config.Redis.DialTimeout,
			ReadTimeout:  config.Redis.ReadTimeout,
			WriteTimeout: config.Redis.WriteTimeout,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not reachable, snapshot cache degraded", zap.Error(err))
		}

		sessionCache := data.NewSessionCache(redisClient, config.Cache.SnapshotTTL, kratosLogger)
		cache = sessionCache
		readiness = sessionCache
	}

	// 远端评分器（可选）
	var remoteFactory biz.ScorerFactory
	if config.RemoteScorer.URL != "" {
		remoteClient := infra.NewRemoteClient(infra.RemoteConfig{
			URL:                config.RemoteScorer.URL,
			APIKey:             config.RemoteScorer.APIKey,
			Model:              config.RemoteScorer.Model,
			Timeout:            config.RemoteScorer.Timeout,
			MaxTokens:          config.RemoteScorer.MaxTokens,
			Temperature:        config.RemoteScorer.Temperature,
			BreakerMaxRequests: config.RemoteScorer.CircuitBreaker.MaxRequests,
			BreakerInterval:    config.RemoteScorer.CircuitBreaker.Interval,
			BreakerTimeout:     config.RemoteScorer.CircuitBreaker.Timeout,
			FailureThreshold:   config.RemoteScorer.CircuitBreaker.Threshold,
			MinRequests:        config.RemoteScorer.CircuitBreaker.MinRequests,
		}, kratosLogger)
		remoteFactory = func() biz.SatisfactionScorer {
			return infra.NewRemoteScorer(remoteClient)
		}
	}

	// 引擎与用例
	livelinessMode := biz.LivelinessDeterministic
	if config.Engine.Liveliness == string(biz.LivelinessRandom) {
		livelinessMode = biz.LivelinessRandom
	}
	sentimentEngine := biz.NewSentimentEngine(livelinessMode, kratosLogger)
	emotionDetector := biz.NewEmotionDetector(kratosLogger)
	sessions := biz.NewSessionUsecase(sentimentEngine, emotionDetector, remoteFactory, cache, kratosLogger)

	// 服务层与 HTTP 服务器
	signalService := service.NewSignalService(sessions, kratosLogger)
	httpServer := server.NewHTTPServer(signalService, readiness, logger)

	return &App{
		Logger:     logger,
		HTTPServer: httpServer,
		Redis:      redisClient,
		Sessions:   sessions,
	}, nil
}
