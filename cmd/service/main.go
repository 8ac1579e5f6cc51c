package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weathertowear/service/internal/auth"
	"github.com/weathertowear/service/internal/cache"
	"github.com/weathertowear/service/internal/client"
	"github.com/weathertowear/service/internal/config"
	httphandler "github.com/weathertowear/service/internal/http"
	"github.com/weathertowear/service/internal/lifecycle"
	"github.com/weathertowear/service/internal/observability"
	"github.com/weathertowear/service/internal/service"
	"github.com/weathertowear/service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	forecastClient, err := client.NewTimelineClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	var db *store.Store
	if cfg.DatabaseDSN != "" {
		db, err = store.New(startupCtx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer db.Close()
		if err := db.InitSchema(startupCtx); err != nil {
			logger.Fatal("database schema", zap.Error(err))
		}
		logger.Info("database connected")
	}

	var forecastCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "postgres":
		forecastCache = cache.NewPostgresCache(db.Pool())
		logger.Info("cache backend: postgres")
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		forecastCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		forecastCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	forecasts := service.NewForecastService(forecastClient, forecastCache, cfg.FreshnessWindow, cfg.CoalesceRequests, cfg.CoalesceTimeout)

	var authService *auth.Service
	if db != nil {
		provider, err := buildAuthProvider(startupCtx, cfg, logger)
		if err != nil {
			logger.Fatal("auth provider", zap.Error(err))
		}
		sessions := auth.NewSessionStore(db.Pool(), cfg.SessionTTL)
		authService = auth.NewService(provider, cfg.AuthProvider, sessions, logger)
		go sessions.PurgeLoop(context.Background(), time.Hour, logger)
		logger.Info("auth enabled", zap.String("provider", cfg.AuthProvider))
	} else {
		logger.Warn("auth disabled: no database configured")
	}

	healthConfig := &httphandler.HealthConfig{}
	if db != nil {
		healthConfig.DBPing = db.Ping
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecasts, authService, forecastClient, healthConfig, cfg.DefaultLocation, logger)

	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	warmLocations := cfg.TrackedLocations
	if cfg.DefaultLocation != "" {
		warmLocations = append([]string{cfg.DefaultLocation}, warmLocations...)
	}
	if len(warmLocations) > 0 {
		warmer := cache.NewWarmer(forecasts, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, warmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		go func() {
			if err := warmer.WarmPeriodic(context.Background(), warmLocations, cfg.FreshnessWindow); err != nil && err != context.Canceled {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
		}()
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/hourly-data", handler.GetHourlyData).Methods("GET")

	authRoutes := router.PathPrefix("/auth").Subrouter()
	authRoutes.Use(httphandler.RateLimitMiddleware(limiter))
	authRoutes.HandleFunc("/otp/login", handler.PostOTPLogin).Methods("POST")
	authRoutes.HandleFunc("/otp/verify", handler.PostOTPVerify).Methods("POST")
	authRoutes.HandleFunc("/otp/resend", handler.PostOTPResend).Methods("POST")
	authRoutes.HandleFunc("/otp/logout", handler.PostOTPLogout).Methods("POST")
	authRoutes.HandleFunc("/session", handler.GetSession).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// buildAuthProvider selects the OTP delivery backend from config.
func buildAuthProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.Provider, error) {
	switch cfg.AuthProvider {
	case auth.ProviderTwilio:
		return auth.NewTwilioProvider(auth.TwilioSettings{
			AccountSID:       cfg.TwilioAccountSID,
			AuthToken:        cfg.TwilioAuthToken,
			FromNumber:       cfg.TwilioFromNumber,
			VerifyServiceSID: cfg.TwilioVerifySID,
			CodeTTL:          cfg.OTPCodeTTL,
		})
	case auth.ProviderCognito:
		return auth.NewCognitoProvider(ctx, auth.CognitoSettings{
			Region:     cfg.CognitoRegion,
			UserPoolID: cfg.CognitoUserPoolID,
			ClientID:   cfg.CognitoClientID,
		})
	default:
		return auth.NewLocalProvider(cfg.OTPCodeTTL, logger), nil
	}
}
