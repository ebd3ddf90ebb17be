package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/sanctio/screening-engine/pkg/broadcast"
	"github.com/sanctio/screening-engine/pkg/cache"
	"github.com/sanctio/screening-engine/pkg/config"
	"github.com/sanctio/screening-engine/pkg/database"
	"github.com/sanctio/screening-engine/pkg/embedding"
	"github.com/sanctio/screening-engine/pkg/handlers"
	"github.com/sanctio/screening-engine/pkg/logging"
	"github.com/sanctio/screening-engine/pkg/matching"
	"github.com/sanctio/screening-engine/pkg/repositories"
	"github.com/sanctio/screening-engine/pkg/services"
	"github.com/sanctio/screening-engine/pkg/vectorindex"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Host),
		zap.Bool("cache_enabled", cfg.Redis.Host != ""),
		zap.Bool("embedding_configured", cfg.Embedding.IsConfigured()),
		zap.Bool("vector_index_configured", cfg.VectorIndex.IsConfigured()))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Optional bindings: a missing embedding or vector index endpoint leaves
	// search and vectorization unavailable but the rest of the service up.
	var embedder embedding.Embedder
	if cfg.Embedding.IsConfigured() {
		client, err := embedding.NewClient(&cfg.Embedding, logger)
		if err != nil {
			logger.Fatal("Failed to create embedding client", zap.Error(err))
		}
		embedder = client
	} else {
		logger.Warn("embedding endpoint not configured; search and vectorization disabled")
	}

	var index vectorindex.Index
	if cfg.VectorIndex.IsConfigured() {
		client, err := vectorindex.NewClient(&cfg.VectorIndex, logger)
		if err != nil {
			logger.Fatal("Failed to create vector index client", zap.Error(err))
		}
		index = client
	} else {
		logger.Warn("vector index not configured; search and vectorization disabled")
	}

	recordRepo := repositories.NewRecordRepository(db, cfg.Ingestion.InsertSubBatchSize, logger)
	identifierRepo := repositories.NewIdentifierRepository(db, logger)
	runRepo := repositories.NewIngestionRunRepository(db)

	vectorizeService := services.NewVectorizeService(recordRepo, index, embedder, &cfg.VectorIndex, logger)
	jobManager := services.NewVectorizeJobManager(vectorizeService, cfg.Ingestion.VectorizeBatchSize, logger)
	ingestionService := services.NewIngestionService(runRepo, recordRepo, jobManager, cfg.Ingestion.MaxStoredErrors, logger)
	progressService := services.NewProgressService(runRepo, jobManager, logger)

	weights := matching.Weights{
		Vector: cfg.Scoring.VectorWeight,
		Name:   cfg.Scoring.NameWeight,
		Meta:   cfg.Scoring.MetaWeight,
	}
	searchService := services.NewSearchService(identifierRepo, recordRepo, index, embedder, weights, logger)

	var cacheBackend cache.Backend
	if redisClient != nil {
		cacheBackend = cache.NewRedisBackend(redisClient)
	}
	recordCache := cache.New(cacheBackend, "records",
		time.Duration(cfg.Redis.TTLSeconds)*time.Second, logger)
	broadcaster := broadcast.NewBroadcaster(logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewIngestHandler(ingestionService, recordCache, logger).RegisterRoutes(mux)
	handlers.NewVectorizeHandler(vectorizeService, logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(searchService, broadcaster, logger).RegisterRoutes(mux)
	handlers.NewProgressHandler(progressService, logger).RegisterRoutes(mux)
	handlers.NewEventsHandler(broadcaster, logger).RegisterRoutes(mux)
	handlers.NewRecordsHandler(recordRepo, recordCache, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting screening-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
