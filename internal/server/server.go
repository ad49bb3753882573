package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tabula/internal/config"
	"tabula/internal/database"
	"tabula/internal/handlers"
	"tabula/internal/middlewares"
	"tabula/internal/repositories"
	"tabula/internal/routes"
	"tabula/internal/services"
)

type Server struct {
	HTTP  *http.Server
	pool  *pgxpool.Pool
	redis *redis.Client
}

// Close releases the database pool and the Redis client.
func (s *Server) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.pool.Close()
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to database")

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	rdb, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// Dependency injection
	databaseRepo := repositories.NewDatabaseRepository(pool)
	tableRepo := repositories.NewTableRepository(pool)
	columnRepo := repositories.NewColumnRepository(pool)
	entryRepo := repositories.NewEntryRepository(pool)
	filterRepo := repositories.NewFilterRepository(pool)
	chartRepo := repositories.NewChartRepository(pool)
	importRepo := repositories.NewCsvImportRepository(pool)
	schemaCache := repositories.NewSchemaCache(rdb)

	catalog := services.NewCatalog(tableRepo, columnRepo, schemaCache, services.OwnerAuthorizer{}, logger)
	databaseService := services.NewDatabaseService(databaseRepo, tableRepo, catalog)
	tableService := services.NewTableService(databaseRepo, tableRepo, columnRepo, catalog)
	entryService := services.NewEntryService(entryRepo, catalog)
	filterService := services.NewFilterService(filterRepo, entryRepo, tableRepo, tableService, catalog, logger)
	chartService := services.NewChartService(chartRepo, entryRepo, catalog)
	csvService := services.NewCsvService(importRepo, entryRepo, tableService, catalog, logger)
	exportService := services.NewExportService(entryRepo, importRepo, filterService, catalog, cfg.ExportDir, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middlewares.CORS(cfg.IsProduction(), cfg.AllowedOrigins),
		middlewares.RequestLogger(logger),
		middlewares.Timeout(cfg.QueryTimeout),
	)
	router.MaxMultipartMemory = 32 << 20

	routes.RegisterRoutes(router, routes.Handlers{
		Databases:  handlers.NewDatabaseHandler(databaseService),
		Tables:     handlers.NewTableHandler(tableService, csvService, filterService),
		Entries:    handlers.NewEntryHandler(entryService),
		Filters:    handlers.NewFilterHandler(filterService),
		CsvImports: handlers.NewCsvImportHandler(csvService),
		Charts:     handlers.NewChartHandler(chartService),
		Exports:    handlers.NewExportHandler(exportService, logger),
	}, middlewares.Authenticate(cfg.AccessTokenSecret))

	return &Server{
		HTTP:  newHTTPServer(cfg, router),
		pool:  pool,
		redis: rdb,
	}, nil
}

// minUploadRate is the slowest client a full size upload is given time for.
const minUploadRate = 256 << 10

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10*time.Second + handlers.MaxUploadSize/minUploadRate*time.Second,
		WriteTimeout:      cfg.QueryTimeout + 30*time.Second,
	}
}

// connectRedis returns nil when no address is configured.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, schema cache disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return rdb, nil
}
