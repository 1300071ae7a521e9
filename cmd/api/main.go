package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"dealstack-api/internal/cache"
	"dealstack-api/internal/config"
	"dealstack-api/internal/database"
	"dealstack-api/internal/events"
	"dealstack-api/internal/features"
	"dealstack-api/internal/handler"
	"dealstack-api/internal/middleware"
	"dealstack-api/internal/service"
	tlsconfig "dealstack-api/internal/tls"
	"dealstack-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize tracing
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			logger.Warn("failed to shut down tracing", zap.Error(err))
		}
	}()

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize cache: Redis when configured, in-memory otherwise
	var c cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
		c = redisCache
		logger.Info("using Redis cache", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		c = cache.NewInMemoryCache()
		logger.Info("using in-memory cache")
	}

	// Initialize feature flags
	featureManager := features.NewManager()
	defer featureManager.Shutdown()
	featureManager.Register(features.FeatureCacheEnabled, cfg.Cache.Enabled, "Cache ranked-offer responses")
	featureManager.Register(features.FeatureEventHooksEnabled, true, "Publish domain events to subscribers")
	featureManager.Register(features.FeaturePersonalization, true, "Use stored preferences and activity in ranking")
	featureManager.Register(features.FeatureStackingSuggestions, true, "Attach stacking opportunity hints to ranked offers")

	// Initialize event manager with logging subscribers
	eventManager := events.NewManager(featureManager.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()
	registerEventLogging(eventManager, logger)

	// Initialize service
	svc, err := service.NewService(db, c, eventManager, featureManager, cfg.Ranking.Weights, logger)
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}

	// Initialize handlers
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	// Setup router
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/stack", func(r chi.Router) {
		r.Post("/optimize", h.OptimizeStack)
		r.Post("/validate", h.ValidateStack)
	})

	r.Route("/deals", func(r chi.Router) {
		r.Post("/", h.CreateDeal)
		r.Get("/{deal_id}", h.GetDeal)
	})

	r.Route("/cards", func(r chi.Router) {
		r.Post("/", h.CreateCard)
		r.Get("/{card_id}", h.GetCard)
		r.Put("/{card_id}", h.UpdateCard)
		r.Delete("/{card_id}", h.DeleteCard)
	})

	r.Route("/offers", func(r chi.Router) {
		r.Post("/rank", h.RankOffers)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/{user_id}/cards", h.GetUserCards)
		r.Post("/{user_id}/rank-deals", h.RankDeals)
		r.Put("/{user_id}/preferences", h.UpdatePreferences)
		r.Post("/{user_id}/activity", h.RecordActivity)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Configure TLS if enabled
	var tlsCfg *tls.Config
	if cfg.Server.EnableTLS {
		tlsCfg, err = tlsconfig.LoadTLSConfig(tlsconfig.Config{
			CertFile: cfg.Server.CertFile,
			KeyFile:  cfg.Server.KeyFile,
		})
		if err != nil {
			logger.Fatal("failed to load TLS configuration", zap.Error(err))
		}

		if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
			logger.Warn("no certificate files provided, using self-signed certificate for development")
		}
	}

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	protocol := "HTTP"
	if cfg.Server.EnableTLS {
		protocol = "HTTPS"
	}
	logger.Info("starting server",
		zap.String("protocol", protocol),
		zap.String("addr", addr),
		zap.String("database", cfg.Database.Path),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)

	server := &http.Server{
		Addr:      addr,
		Handler:   r,
		TLSConfig: tlsCfg,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("error shutting down server", zap.Error(err))
		}
	}()

	if cfg.Server.EnableTLS {
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			// Self-signed cert lives in TLSConfig, so serve on a TLS listener
			listener, listenErr := tls.Listen("tcp", addr, tlsCfg)
			if listenErr != nil {
				logger.Fatal("failed to create TLS listener", zap.Error(listenErr))
			}
			err = server.Serve(listener)
		}
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// registerEventLogging wires a structured-log subscriber to every
// domain event type.
func registerEventLogging(m *events.Manager, logger *zap.Logger) {
	logEvent := func(ctx context.Context, event events.Event) error {
		logger.Info("event published",
			zap.String("type", string(event.Type)),
			zap.Time("timestamp", event.Timestamp),
		)
		return nil
	}

	for _, eventType := range []events.EventType{
		events.EventDealCreated,
		events.EventCardCreated,
		events.EventStackOptimized,
		events.EventStackValidated,
		events.EventDealsRanked,
		events.EventOffersRanked,
	} {
		m.Subscribe(eventType, logEvent)
	}
}
