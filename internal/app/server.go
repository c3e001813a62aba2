// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"meterd-service/internal/config"
	"meterd-service/internal/db"
	accessHandler "meterd-service/internal/handlers/access"
	billingHandler "meterd-service/internal/handlers/billing"
	principalHandler "meterd-service/internal/handlers/principal"
	subscriptionHandler "meterd-service/internal/handlers/subscription"
	usageHandler "meterd-service/internal/handlers/usage"
	wsHandler "meterd-service/internal/handlers/websocket"
	"meterd-service/internal/middleware"
	"meterd-service/internal/notify"
	"meterd-service/internal/pkg/jwt"
	"meterd-service/internal/repository/cache"
	"meterd-service/internal/repository/postgres"
	"meterd-service/internal/scheduler"
	accessUsecase "meterd-service/internal/service/access"
	overageUsecase "meterd-service/internal/service/overage"
	principalUsecase "meterd-service/internal/service/principal"
	subscriptionUsecase "meterd-service/internal/service/subscription"
	usageUsecase "meterd-service/internal/service/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	loc := s.cfg.Location()

	// ----- Repositories -----
	principalRepo := postgres.NewPrincipalRepository(pool)
	chargeRepo := postgres.NewOverageChargeRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool, chargeRepo)
	dailyCounter := cache.NewDailyUsageCounter(redisClient, loc)

	// ----- Notification Hub -----
	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	// ----- Services -----
	authority := accessUsecase.NewAuthority(accessUsecase.DefaultConfig(), logger)
	meter := usageUsecase.NewMeter(subscriptionRepo, dailyCounter, logger)
	ledger := overageUsecase.NewLedger(subscriptionRepo, dailyCounter, chargeRepo, hub, logger)
	planService := subscriptionUsecase.NewService(
		subscriptionRepo,
		subscriptionUsecase.NewLoggingProcessor(logger),
		hub,
		logger,
	)
	principalService := principalUsecase.NewService(principalRepo, authority, hub, logger)

	// ----- Scheduler -----
	sched := scheduler.New(planService, loc, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ----- Handlers -----
	accessHandlerInst := accessHandler.NewAccessHandler(authority, principalRepo)
	usageHandlerInst := usageHandler.NewUsageHandler(meter, ledger)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(planService)
	chargeHandlerInst := billingHandler.NewChargeHandler(ledger, authority)
	principalHandlerInst := principalHandler.NewPrincipalHandler(principalService)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AccessHandler:       accessHandlerInst,
		UsageHandler:        usageHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		ChargeHandler:       chargeHandlerInst,
		PrincipalHandler:    principalHandlerInst,
		WSHandler:           wsHandlerInst,
		AuthMiddleware:      authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
