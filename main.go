package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicservice-be/captcha"
	"civicservice-be/config"
	"civicservice-be/controllers"
	"civicservice-be/metrics"
	"civicservice-be/middlewares"
	"civicservice-be/notify"
	"civicservice-be/routes"
	"civicservice-be/services"
	"civicservice-be/store"
	authUtils "civicservice-be/utils"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// backend is a Store that also serves accounts
type backend interface {
	services.Store
	services.UserStore
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	switch cfg.DatabaseProvider {
	case config.ProviderMongo:
		client, err := config.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return s, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.ProviderPostgres:
		s, err := store.OpenSQL(ctx, store.DialectPostgres, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.ProviderSQLite:
		s, err := store.OpenSQL(ctx, store.DialectSQLite, store.SQLiteDSN(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		log.Warn("Using in-memory store, data will not survive a restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}

func buildNotifier(cfg *config.Config) (services.Notifier, func()) {
	var chain notify.Multi
	closers := func() {}

	if cfg.SendGridAPIKey != "" {
		chain = append(chain, notify.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail))
	}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			log.WithError(err).Error("RabbitMQ unavailable, status events will not be published")
		} else {
			chain = append(chain, publisher)
			closers = func() { _ = publisher.Close() }
		}
	}
	if len(chain) == 0 {
		return notify.Instrumented{Next: notify.LogNotifier{}}, closers
	}
	return notify.Instrumented{Next: chain}, closers
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	cfg := config.Load()
	config.SetupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	ctx := context.Background()

	db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}
	defer closeStore()
	log.WithField("provider", cfg.DatabaseProvider).Info("Store ready")

	checks := []controllers.HealthCheck{{Name: "store", Check: db.Ping}}

	var (
		rdb           *redis.Client
		authLimiter   middlewares.Limiter
		submitLimiter middlewares.Limiter
		lockout       controllers.LoginLockout
	)
	if cfg.RedisAddress != "" {
		rdb, err = config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, falling back to in-process limits")
		}
	}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, controllers.RedisCheck(rdb))
		authLimiter = middlewares.NewRedisLimiter(rdb, cfg.RateLimitPrefix+":auth", cfg.AuthRateLimit, time.Minute)
		submitLimiter = middlewares.NewRedisLimiter(rdb, cfg.RateLimitPrefix+":submit", cfg.SubmitRateLimit, time.Minute)
		lockout = controllers.NewRedisLockout(rdb, cfg.RateLimitPrefix)
	} else {
		authLimiter = middlewares.NewLocalLimiter(cfg.AuthRateLimit, time.Minute)
		submitLimiter = middlewares.NewLocalLimiter(cfg.SubmitRateLimit, time.Minute)
		lockout = controllers.NewMemoryLockout()
	}

	notifier, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	verifier := captcha.NewRecaptcha(cfg.RecaptchaSecretKey, cfg.RecaptchaMinScore)
	if !verifier.IsConfigured() {
		log.Warn("RECAPTCHA_SECRET_KEY not set, CAPTCHA checks are disabled")
	}

	tokens := authUtils.TokenConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}

	svc := services.NewRequestService(db, db, notifier, services.WithNotifyTimeout(cfg.NotifyTimeout))
	auth := &controllers.AuthController{
		Users:        db,
		Tokens:       tokens,
		Captcha:      verifier,
		Lockout:      lockout,
		CookieDomain: cfg.CookieDomain,
		SecureCookie: cfg.IsProduction(),
	}

	if cfg.AdminEmail != "" {
		if err := auth.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.WithError(err).Error("Failed to seed admin account")
		}
	}

	router := routes.NewRouter(routes.Deps{
		Requests:      controllers.NewRequestController(svc, verifier),
		Auth:          auth,
		Health:        &controllers.HealthController{Checks: checks},
		Tokens:        tokens,
		AuthLimiter:   authLimiter,
		SubmitLimiter: submitLimiter,
		CORSOrigins:   cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shut down")
	}
	svc.Wait()
}
