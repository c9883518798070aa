// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"topluluk-service/internal/config"
	"topluluk-service/internal/db"
	authHandler "topluluk-service/internal/handlers/auth"
	"topluluk-service/internal/middleware"
	"topluluk-service/internal/pkg/device"
	"topluluk-service/internal/pkg/event"
	"topluluk-service/internal/pkg/kv"
	"topluluk-service/internal/pkg/session"
	"topluluk-service/internal/pkg/token"
	"topluluk-service/internal/repository/postgres"
	authUsecase "topluluk-service/internal/service/auth"
	communityUsecase "topluluk-service/internal/service/community"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	transport     *event.NATSTransport
	subscriptions []event.Subscription
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		ClusterMode: s.cfg.RedisCluster,
		Addresses:   []string{s.cfg.RedisAddr},
		Password:    s.cfg.RedisPass,
		DB:          0,
		PoolSize:    10,
	}
	var redisClient redis.UniversalClient
	if redisCfg.ClusterMode {
		redisClient, err = db.NewRedisClusterClient(redisCfg)
	} else {
		redisClient, err = db.NewRedisClient(redisCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")
	store := kv.NewRedisStore(redisClient)

	// ----- NATS -----
	transport, err := event.NewNATSTransport(s.cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.transport = transport
	log.Println("[NATS] ✅ Connected successfully")

	publisher := event.NewPublisher(transport, s.cfg.ServiceName, logger)
	subscriber := event.NewSubscriber(transport, s.cfg.ServiceName, logger)

	// ----- Token Authority -----
	authority, err := token.NewAuthority(s.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to build token authority: %w", err)
	}

	// ----- Session & Device -----
	sessionStore := session.NewStore(store, logger)
	deviceTrust := device.NewTrustService(store, logger)

	// ----- Repositories -----
	userRepo := postgres.NewUserRepository(pool)
	communityRepo := postgres.NewCommunityRepository(pool)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewService(
		userRepo,
		authority,
		sessionStore,
		deviceTrust,
		publisher,
		logger,
	)
	communityService := communityUsecase.NewService(communityRepo, logger)

	// ----- Bus Responders -----
	authSubs, err := authService.RegisterResponders(subscriber)
	if err != nil {
		return fmt.Errorf("failed to register auth responders: %w", err)
	}
	communitySubs, err := communityService.RegisterResponders(subscriber)
	if err != nil {
		return fmt.Errorf("failed to register community responders: %w", err)
	}
	s.subscriptions = append(s.subscriptions, authSubs...)
	s.subscriptions = append(s.subscriptions, communitySubs...)

	// ----- Session Sweeper -----
	// The absolute TTL reaps leaked records; this sweep catches sessions
	// idle past the activity window but still inside their TTL.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := sessionStore.CleanupExpired(context.Background()); err != nil {
				logger.Error("session cleanup failed", zap.Error(err))
			}
		}
	}()

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(authService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		AuthMiddleware: authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown tears down bus subscriptions and drains the broker
// connection.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, sub := range s.subscriptions {
		_ = sub.Close()
	}
	if s.transport != nil {
		return s.transport.Close()
	}
	return nil
}
