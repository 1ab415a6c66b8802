package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/havenmind/booking/internal/auth"
	"github.com/havenmind/booking/internal/booking"
	"github.com/havenmind/booking/internal/conflict"
	"github.com/havenmind/booking/internal/handlers"
	"github.com/havenmind/booking/internal/outbox"
	"github.com/havenmind/booking/internal/platform/config"
	"github.com/havenmind/booking/internal/platform/db"
	"github.com/havenmind/booking/internal/platform/httpx"
	"github.com/havenmind/booking/internal/platform/kafkax"
	"github.com/havenmind/booking/internal/platform/otelx"
	"github.com/havenmind/booking/internal/platform/runtime"
	"github.com/havenmind/booking/internal/rules"
	"github.com/havenmind/booking/internal/slots"
	"github.com/havenmind/booking/internal/storage"
)

const serviceName = "booking-service"

func main() {
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}
	brokers := config.String("KAFKA_BROKERS", "")
	redisAddr := config.String("REDIS_ADDR", "")

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, databaseURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		AppName:  serviceName,
	})
	if err != nil {
		logger.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storage.NewPostgres(pool)
	cfg := bookingConfig()
	generator := slots.NewGenerator(cfg)
	detector := conflict.NewDetector(cfg)
	svc := booking.NewService(store, generator, detector, cfg, logger)

	checks := []runtime.ReadyCheck{{Name: "postgres", Check: db.ReadyCheck(pool)}}

	var publicLimiter httpx.Middleware
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, serviceName)
		publicLimiter = limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	publisher := outbox.NewPublisher(outbox.NewRepository(pool), logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: time.Duration(config.Int("OUTBOX_POLL_MS", 2000)) * time.Millisecond,
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMux(checks...)
	handlers.New(svc, logger).Register(mux, auth.NewVerifier(jwtSecret), publicLimiter)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",")),
		httpx.WithBodyLimit(1<<20),
	)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

// bookingConfig assembles the validation policy, defaults per the platform
// standard with env overrides for staging experiments.
func bookingConfig() rules.ValidationConfig {
	cfg := rules.DefaultConfig()
	cfg.AllowedDurations = config.Ints("ALLOWED_DURATIONS", cfg.AllowedDurations)
	cfg.BusinessHours.Start = config.String("BUSINESS_HOURS_START", cfg.BusinessHours.Start)
	cfg.BusinessHours.End = config.String("BUSINESS_HOURS_END", cfg.BusinessHours.End)
	cfg.AdvanceBooking.MinHours = config.Int("MIN_ADVANCE_HOURS", cfg.AdvanceBooking.MinHours)
	cfg.AdvanceBooking.MaxDays = config.Int("MAX_ADVANCE_DAYS", cfg.AdvanceBooking.MaxDays)
	cfg.WeekendAllowed = config.Bool("WEEKEND_BOOKING_ALLOWED", cfg.WeekendAllowed)
	cfg.SlotIntervalMin = config.Int("SLOT_INTERVAL_MINUTES", cfg.SlotIntervalMin)
	cfg.ClientOverlapAllowed = config.Bool("CLIENT_OVERLAP_ALLOWED", cfg.ClientOverlapAllowed)
	return cfg
}
