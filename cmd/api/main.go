package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"Photo_Archive/config"
	"Photo_Archive/internal/cache"
	"Photo_Archive/internal/handler"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/mysql"
	"Photo_Archive/internal/repository/redis"
	"Photo_Archive/internal/router"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Init(); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := &config.AppConfig
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := pkg.InitLogger(cfg.LogLevel)
	defer logger.Sync()
	pkg.SetSecrets(cfg.JWTAccessSecret, cfg.JWTRefreshSecret)

	db, err := mysql.InitDB(cfg.DSN(), cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		logger.Fatal("connect mysql failed", zap.Error(err))
	}
	// 自动建表（开发阶段 OK）
	if err := mysql.AutoMigrate(db); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	rdb, err := redis.Init(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("connect redis failed", zap.Error(err))
	}
	defer redis.Close()

	clock := pkg.SystemClock{}
	quotaLoc, _ := cfg.QuotaLocation()

	contentRepo := mysql.NewContentRepository(db)
	userRepo := mysql.NewUserRepository(db)
	notificationRepo := mysql.NewNotificationRepository(db)
	likeCache := redis.NewLikeCacheRepository(rdb)

	var backend cache.Backend
	switch cfg.CacheBackend {
	case "redis":
		backend = redis.NewCacheBackend(rdb)
	default:
		backend = cache.NewMemoryBackend(cfg.CacheTTL, time.Minute)
	}
	readThrough := cache.NewReadThrough(backend, clock, logger.Named("cache"), 100*time.Millisecond)

	rateCfg := service.DefaultRateLimiterConfig()
	rateCfg.LookupTimeout = cfg.RateLookupTimeout
	limiter, err := service.NewRateLimiter(redis.NewRateEventRepository(rdb), rateCfg, clock, logger.Named("ratelimit"))
	if err != nil {
		logger.Fatal("rate limiter config invalid", zap.Error(err))
	}
	quota := service.NewQuotaResolver(contentRepo, service.DefaultTierRules(), quotaLoc, clock)

	modSvc := service.NewModerationService(service.ModerationDeps{
		Content: contentRepo,
		Stats:   mysql.NewStatsRepository(db),
		Badges:  mysql.NewBadgeRepository(db),
		Users:   userRepo,
		Cache:   readThrough,
		Rules:   service.DefaultBadgeRules(),
		Clock:   clock,
		Logger:  logger.Named("moderation"),
	})
	queue := service.NewModerationQueue(modSvc, contentRepo, cfg.QueueCommitTimeout, cfg.QueueStaleAfter, clock, logger.Named("queue"))
	contentSvc := service.NewContentService(service.ContentDeps{
		Content:    contentRepo,
		Users:      userRepo,
		Moderation: modSvc,
		Limiter:    limiter,
		Quota:      quota,
		Cache:      readThrough,
		TTL:        cfg.CacheTTL,
		Clock:      clock,
		Logger:     logger.Named("content"),
	})
	engageSvc := service.NewEngagementService(contentRepo, mysql.NewEngagementRepository(db), likeCache, redis.NewDistLock(rdb), logger.Named("engagement"))
	userSvc := service.NewUserService(userRepo, redis.NewSessionRepository(rdb))

	var sender service.Sender
	switch cfg.NotifySender {
	case "kafka":
		producer := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		defer producer.Close()
		sender = service.KafkaSender(producer)
	case "email":
		dialer := pkg.NewDialer(pkg.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		sender = service.EmailSender(dialer, cfg.SMTPFrom, userRepo)
	default:
		sender = service.LogSender(logger.Named("notify"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relayer := service.NewOutboxRelayer(notificationRepo, sender, cfg.OutboxInterval, cfg.OutboxBatch, cfg.OutboxMaxRetry, logger.Named("outbox"))
	reconciler := service.NewCounterReconciler(mysql.NewCounterReconcilerRepo(db), likeCache, cfg.ReconcileInterval, cfg.ReconcileBatch, logger.Named("reconciler"))
	go relayer.Run(ctx)
	go reconciler.Run(ctx)

	r := router.InitRouter(router.Handlers{
		User:         handler.NewUserHandler(userSvc),
		Content:      handler.NewContentHandler(contentSvc, modSvc, quota),
		Engagement:   handler.NewEngagementHandler(engageSvc),
		Moderation:   handler.NewModerationHandler(queue, modSvc),
		Notification: handler.NewNotificationHandler(service.NewNotificationService(notificationRepo), modSvc),
	}, userSvc, logger, cfg.FrontendURL)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
}
