package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/logger"
	"marketplace/internal/middleware"
	"marketplace/internal/modules/booking"
	"marketplace/internal/modules/wallet"
	jwtsvc "marketplace/internal/pkg/jwt"
	"marketplace/internal/realtime"
	"marketplace/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.IsProdLike(), cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	db, err := database.Connect(cfg.DatabaseURL, zl)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	store := repository.NewStore(db)

	var routerOpts []realtime.Option
	if cfg.AMQPURL != "" {
		mirror, err := realtime.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer func() { _ = mirror.Close() }()
		routerOpts = append(routerOpts, realtime.WithMirror(mirror))
		zl.Info("mirroring events to rabbitmq", zap.String("exchange", cfg.AMQPExchange))
	}
	dispatch := realtime.NewRouter(realtime.NewRegistry(), zl, routerOpts...)

	fees, err := booking.NewFeePolicy(cfg.Booking.FeeRate, cfg.Booking.MinFee)
	if err != nil {
		return err
	}
	validator := booking.NewValidator(store, store, booking.Rules{
		Location:         cfg.Booking.Location(),
		OpenHour:         cfg.Booking.OpenHour,
		CloseHour:        cfg.Booking.CloseHour,
		MaxHorizonMonths: cfg.Booking.MaxHorizonMonths,
		DailyQuota:       cfg.Booking.DailyQuota,
	})
	bookingService := booking.NewService(store, validator, fees, dispatch, zl, booking.Options{
		TxTimeout:     cfg.Booking.TxTimeout,
		AdminClawback: cfg.Booking.AdminClawback,
	})
	bookingHandler := booking.NewHandler(bookingService)
	walletHandler := wallet.NewHandler(wallet.NewService(store))

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}
	rate, err := middleware.ParseRate(cfg.RateLimit)
	if err != nil {
		return err
	}
	limitStore, err := middleware.NewLimiterStore(rdb, "create_booking")
	if err != nil {
		return err
	}

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorLogger(zl), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", realtime.NewWSHandler(dispatch, j, bookingService, zl).HandleWebSocket)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(j))
	bookingHandler.RegisterRoutes(v1, middleware.RateLimit(limitStore, rate))
	walletHandler.RegisterRoutes(v1)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", server.Addr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-shutdown:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
