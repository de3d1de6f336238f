// File: sevaboard/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sevaboard/config"
	"sevaboard/cron"
	"sevaboard/database"
	notificationRepo "sevaboard/database/repository/notification"
	"sevaboard/handlers"
	"sevaboard/middleware"
	"sevaboard/routes"
	"sevaboard/services/channel"
	"sevaboard/services/notification"
	"sevaboard/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// store is the notification repository plus whatever must be closed with it.
type store struct {
	repo     notificationRepo.NotificationRepository
	firebase *utils.FirebaseClients
	close    func()
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer logger.Sync()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cron.ValidateSchedule(cfg.SweepSchedule); err != nil {
		logger.Fatal("main: invalid sweep schedule", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The loop must never start without store access.
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("main: notification store unavailable", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer st.close()

	// delivery channel.
	hub := channel.NewHub(cfg.SubscriberBuffer, logger.Named("channel"))
	var broadcaster channel.Broadcaster = hub
	var redisPinger utils.Pinger

	if config.RedisEnabled() {
		client, err := utils.NewRedisClient(utils.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Error("main: redis relay disabled, delivering to local subscribers only", zap.Error(err))
		} else {
			defer client.Close()
			relay := channel.NewRedisRelay(client, cfg.RedisChannel, hub, logger.Named("relay"))
			broadcaster = relay
			redisPinger = utils.RedisPinger{Client: client}
			go relay.Serve(ctx)
		}
	}

	// services.
	opts := []notification.Option{notification.WithLogger(logger.Named("notification"))}
	if st.firebase != nil && cfg.FCMTopic != "" {
		opts = append(opts, notification.WithFCMTopic(st.firebase.Messaging, cfg.FCMTopic))
	}
	notificationService, err := notification.NewDefaultNotificationService(st.repo, broadcaster, opts...)
	if err != nil {
		logger.Fatal("main: failed to initialize notification service", zap.Error(err))
	}

	// scheduler loop.
	sweeper := cron.NewSweeper(st.repo, notificationService, logger.Named("sweeper"))
	scheduler := cron.NewCronScheduler(time.UTC, logger.Named("cron"))
	if err := cron.InitSweepWorker(ctx, scheduler, sweeper, cfg.SweepSchedule, cfg.SweepTimeout, logger.Named("sweeper")); err != nil {
		logger.Fatal("main: failed to register sweep", zap.Error(err))
	}
	scheduler.Start()

	healthMonitor := utils.NewHealthMonitor(st.repo, redisPinger, utils.HealthCheckInterval)
	healthMonitor.Start(ctx)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = uuid.New().String()
		logger.Warn("main: JWT_SECRET not set, admin tokens will not survive a restart")
	}
	issuer := utils.NewTokenIssuer(jwtSecret, cfg.JWTTTL)

	socketHandler := handlers.NewSocketHandler(hub, logger.Named("socket"))
	notificationHandler := handlers.NewNotificationHandler(notificationService, sweeper)
	authHandler := handlers.NewAuthHandler(handlers.AdminCredentials{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
	}, issuer)
	healthHandler := handlers.NewHealthHandler(healthMonitor, hub)

	handlerBundle := &handlers.HandlerBundle{
		TokenIssuer:                 issuer,
		SocketHandler:               socketHandler.ServeSocket,
		AdminLoginHandler:           authHandler.AdminLoginHandler,
		ScheduleNotificationHandler: notificationHandler.ScheduleNotificationHandler,
		ListNotificationsHandler:    notificationHandler.ListNotificationsHandler,
		TriggerSweepHandler:         notificationHandler.TriggerSweepHandler,
		HealthCheckHandler:          healthHandler.HealthCheckHandler,
	}

	router := gin.New()
	router.Use(utils.ErrorHandler(logger))
	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin, logger))
	routes.RegisterRoutes(router, handlerBundle)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.SocketPort,
		Handler: router,
	}

	logger.Info("main: notification server starting",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.StoreBackend),
		zap.String("schedule", cfg.SweepSchedule),
		zap.Bool("redisRelay", redisPinger != nil),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("main: server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer cancel()

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("main: sweep still running at shutdown")
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main: server forced to shutdown", zap.Error(err))
	}

	logger.Info("main: server stopped gracefully")
}

// openStore connects the configured backend and proves it is reachable.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StoreFirestore:
		fb, err := utils.FirebaseInit(ctx, utils.FirebaseCredentials{
			AdminKey:        cfg.FirebaseAdminKey,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			ProjectID:       cfg.FirebaseProjectID,
		})
		if err != nil {
			return nil, err
		}
		repo := notificationRepo.NewFirestoreNotificationRepo(fb.Firestore)
		if err := repo.Ping(pingCtx); err != nil {
			fb.Close()
			return nil, err
		}
		return &store{
			repo:     repo,
			firebase: fb,
			close: func() {
				if err := fb.Close(); err != nil {
					logger.Warn("main: closing firestore", zap.Error(err))
				}
			},
		}, nil

	case config.StoreMongo:
		client, err := database.InitDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo, err := notificationRepo.NewMongoNotificationRepo(client, cfg.DatabaseName)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &store{
			repo: repo,
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Warn("main: closing mongo", zap.Error(err))
				}
			},
		}, nil

	case config.StoreMemory:
		logger.Warn("main: using in-memory notification store, records are lost on restart")
		return &store{repo: notificationRepo.NewMemoryNotificationRepo(), close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
