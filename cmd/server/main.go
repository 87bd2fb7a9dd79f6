package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/puce-ride/appride/internal/config"
	"github.com/puce-ride/appride/internal/database"
	"github.com/puce-ride/appride/internal/handler"
	"github.com/puce-ride/appride/internal/middleware"
	"github.com/puce-ride/appride/internal/queue"
	"github.com/puce-ride/appride/internal/repository"
	"github.com/puce-ride/appride/internal/router"
	"github.com/puce-ride/appride/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(config.ParseLogLevel(cfg.LogLevel))
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			c.Logger().Infof("%s %s %d %s id=%s", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))
	e.Use(echomw.CORS())
	e.Use(middleware.Metrics())

	db, err := database.Open(database.Options{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		e.Logger.Fatalf("db: %v", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		e.Logger.Fatalf("migrate: %v", err)
	}
	cancel()

	// Redis is optional: without it the API runs uncached and unthrottled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		e.Logger.Warn("redis unavailable: rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events service.EventPublisher
	if cfg.Events.Enabled {
		pub := queue.NewPublisher(cfg.Events.URL, log.New("events"))
		defer pub.Close()
		events = pub

		audit := &queue.AuditConsumer{URL: cfg.Events.URL, Dir: cfg.Events.LogDir, Logger: log.New("audit")}
		go func() {
			if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("audit consumer: %v", err)
			}
		}()
	}

	store := repository.NewStore(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	engine := service.NewReservationEngine(store, events, log.New("reservations"), cfg.StrictTransitions)
	trips := service.NewTripService(store, users)

	health := &handler.Health{
		Required: map[string]handler.Check{"mysql": db.PingContext},
	}
	if rdb != nil {
		health.Optional = map[string]handler.Check{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}
	}

	router.RegisterRoutes(e, health)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterUsers(e, handler.NewUserHandler(users), cfg.JWTSecret)
	router.RegisterTrips(e, handler.NewTripHandler(trips, cache), cfg.JWTSecret, cache.Middleware())
	router.RegisterReservations(e, handler.NewReservationHandler(engine, cache), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		e.Logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
}
