package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"damdam/internal/ai"
	"damdam/internal/broadcast"
	"damdam/internal/config"
	"damdam/internal/handler"
	"damdam/internal/pkg/cache"
	"damdam/internal/pkg/jwt"
	"damdam/internal/pkg/mongodb"
	"damdam/internal/pkg/storage"
	"damdam/internal/pkg/storage/local"
	"damdam/internal/pkg/storage/oss"
	"damdam/internal/repository"
	"damdam/internal/server/middleware"
	"damdam/internal/service"
)

// Server owns the HTTP/WebSocket surface and the wiring of the
// counseling pipeline behind it.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache

	hub *broadcast.Hub
	svc *service.CounselService
}

// New builds the server. Redis and Mongo are optional: when either is
// unreachable the in-memory fallbacks keep the pipeline working, at
// the cost of durability.
func New(cfg *config.Config) (*Server, error) {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	var sessionStore repository.SessionStore
	if redisCache != nil {
		sessionStore = repository.NewRedisSessionStore(redisCache)
	} else {
		log.Warn().Msg("Redis unavailable, sessions are held in memory only")
		sessionStore = repository.NewMemorySessionStore()
	}

	var archive repository.TranscriptArchive
	var userContexts repository.UserContextProvider
	if mongoClient != nil {
		archive = repository.NewMongoTranscriptArchive(mongoClient.Database())
		userContexts = repository.NewMongoUserContextProvider(mongoClient.Database())
	} else {
		log.Warn().Msg("MongoDB unavailable, transcripts are archived in memory only")
		archive = repository.NewMemoryTranscriptArchive()
		userContexts = repository.NewMemoryUserContextProvider()
	}

	gateway, err := ai.NewClient(context.Background(), &cfg.AI, &cfg.Analysis)
	if err != nil {
		return nil, err
	}

	hub := broadcast.NewHub()
	svc := service.NewCounselService(sessionStore, archive, userContexts, gateway, hub)

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
		hub:    hub,
		svc:    svc,
	}

	srv.setupRoutes()

	return srv, nil
}

// setupRoutes installs middleware and the API surface.
func (s *Server) setupRoutes() {
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	jwtSecret := s.cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "default-secret-key-change-in-production"
		log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
	}
	accessTokenExpiry := s.cfg.Auth.AccessTokenExpiry
	if accessTokenExpiry == 0 {
		accessTokenExpiry = 24 * time.Hour
	}
	jwtUtil := jwt.NewJWT(jwtSecret, accessTokenExpiry)

	counselHandler := handler.NewCounselHandler(s.svc)
	wsHandler := handler.NewWSHandler(s.svc, s.hub)

	v1 := s.engine.Group("/api/v1")
	v1.Use(middleware.Auth(jwtUtil))
	{
		counsels := v1.Group("/counsels")
		{
			counsels.POST("/:room_id/chat", counselHandler.Chat)
			counsels.POST("/:room_id/voice", counselHandler.Voice)
			counsels.POST("/:room_id/close", counselHandler.Close)
			counsels.DELETE("/:room_id", counselHandler.Delete)
			counsels.GET("/:room_id/report", counselHandler.Report)
		}

		if store := s.newStorage(); store != nil {
			audioHandler := handler.NewAudioHandler(store)
			v1.POST("/resources/audio", audioHandler.Upload)
		} else {
			log.Warn().Msg("storage backend unavailable, audio upload disabled")
		}
	}

	ws := s.engine.Group("/ws")
	ws.Use(middleware.Auth(jwtUtil))
	ws.GET("/counsels/:room_id", wsHandler.Serve)
}

// newStorage builds the audio blob backend selected by configuration.
func (s *Server) newStorage() storage.Storage {
	cfg := s.cfg.Storage

	switch storage.StorageType(cfg.Type) {
	case storage.StorageTypeOSS:
		if cfg.OSS == nil {
			log.Warn().Msg("oss storage selected but not configured")
			return nil
		}
		store, err := oss.NewOSSStorage(cfg.OSS.Endpoint, cfg.OSS.Bucket, cfg.OSS.AccessKeyID, cfg.OSS.AccessKeySecret, cfg.OSS.PresignExpiry)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize oss storage")
			return nil
		}
		return store
	default:
		if cfg.Local == nil {
			log.Warn().Msg("local storage not configured")
			return nil
		}
		store, err := local.NewLocalStorage(cfg.Local.BasePath, cfg.Local.BaseURL, cfg.Local.PresignExpiry)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize local storage")
			return nil
		}
		return store
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine exposes the Gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
