package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/config"
	"storefront/internal/database"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/storage"
	"storefront/internal/transport"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
	gridfs *storage.GridFSStore
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db database.Service) (*Server, error) {
	s := &Server{config: cfg, logger: logger, db: db}

	images, err := s.imageStore(ctx)
	if err != nil {
		return nil, err
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	router := chi.NewRouter()

	// Add basic middleware
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.IsProduction()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.Errors(custommiddleware.NewErrorRenderer(logger, !cfg.IsProduction())))

	router.Get("/health", s.health)

	// Initialize repositories
	sqlDB := db.DB()
	tx := database.NewTransactor(sqlDB)
	userRepo := repository.NewUserRepository(sqlDB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(sqlDB)
	categoryRepo := repository.NewCategoryRepository(sqlDB)
	productRepo := repository.NewProductRepository(sqlDB)
	reviewRepo := repository.NewReviewRepository(sqlDB)
	orderRepo := repository.NewOrderRepository(sqlDB)

	// Initialize services
	mailer := notify.New(cfg.SMTP, logger)
	authService := service.NewAuthService(userRepo, refreshTokenRepo, mailer, tx, service.AuthConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	}, logger)
	categoryService := service.NewCategoryService(categoryRepo)
	productService := service.NewProductService(productRepo, categoryRepo, reviewRepo, images, tx)
	reviewService := service.NewReviewService(reviewRepo, productRepo, tx, logger)
	orderService := service.NewOrderService(orderRepo, productRepo, tx, logger)
	userService := service.NewUserService(userRepo, reviewRepo, reviewService, images, tx, logger)

	guards := transport.Guards{
		Auth:  custommiddleware.AuthMiddleware(authService, logger),
		Admin: custommiddleware.RequireAdmin(logger),
		RateLimit: custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "storefront_rate_limit",
		}, logger),
	}

	// Register routes
	transport.NewImageHandler(images, logger).RegisterRoutes(router)
	transport.NewProductHandler(productService, logger).RegisterRoutes(router, guards)
	transport.NewCategoryHandler(categoryService, logger).RegisterRoutes(router, guards)
	transport.NewReviewHandler(reviewService, logger).RegisterRoutes(router, guards)
	transport.NewOrderHandler(orderService, logger).RegisterRoutes(router, guards)
	transport.NewUserHandler(authService, userService, cfg.Server.BaseURL, logger).RegisterRoutes(router, guards)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithError(w, r, apperror.NotFound(fmt.Sprintf("Can't find %s", r.URL.Path)))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithError(w, r, apperror.NotFound(fmt.Sprintf("Can't find %s %s", r.Method, r.URL.Path)))
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// imageStore picks GridFS when a Mongo URI is configured and the local media
// directory otherwise.
func (s *Server) imageStore(ctx context.Context) (storage.ImageStore, error) {
	if s.config.Media.MongoURI != "" {
		store, err := storage.NewGridFSStore(ctx, s.config.Media.MongoURI, s.config.Media.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to open GridFS image store: %w", err)
		}
		s.gridfs = store
		s.logger.Info("Storing images in GridFS", zap.String("database", s.config.Media.MongoDatabase))
		return store, nil
	}

	store, err := storage.NewDiskStore(s.config.Media.Dir)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Storing images on disk", zap.String("dir", s.config.Media.Dir))
	return store, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats := s.db.Health(ctx)
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
		s.logger.Warn("Database health check failed", zap.String("error", stats["error"]))
		delete(stats, "error")
	}

	redisStatus := "up"
	if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "down"
	}

	custommiddleware.RespondWithJSON(w, status, map[string]any{
		"status":   stats["status"],
		"database": stats,
		"redis":    redisStatus,
	})
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.gridfs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.gridfs.Close(ctx); err != nil {
			s.logger.Error("Failed to close GridFS store", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
