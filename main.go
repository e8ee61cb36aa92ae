package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/api"
	"github.com/gilby125/flight-connections/climate"
	"github.com/gilby125/flight-connections/config"
	"github.com/gilby125/flight-connections/db"
	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/buildinfo"
	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/health"
	"github.com/gilby125/flight-connections/pkg/leader"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/pkg/retryhttp"
	"github.com/gilby125/flight-connections/planner"
	"github.com/gilby125/flight-connections/profile"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal(err, "Failed to load configuration")
	}

	logger.Init(logger.Config{Level: cfg.LoggingConfig.Level, Format: cfg.LoggingConfig.Format})
	log := logger.Default()
	log.Info("Starting flight-connections", "version", buildinfo.Version, "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewHealthChecker(buildinfo.Version)

	var redisClient *redis.Client
	var shared *cache.CacheManager
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisConfig.Host, cfg.RedisConfig.Port),
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer redisClient.Close()
		shared = cache.NewCacheManager(cache.NewRedisCache(redisClient, "flight-connections"))
		checker.AddCriticalChecker(&health.RedisChecker{Client: redisClient, Name: "redis"})
	}

	source, closeSource, err := catalogSource(ctx, cfg, checker, log)
	if err != nil {
		log.Fatal(err, "Failed to set up airport source", "source", cfg.CatalogConfig.Source)
	}
	defer closeSource()
	if shared != nil && cfg.CatalogConfig.CacheTTL > 0 {
		source = &airports.CachedSource{Source: source, Cache: shared, TTL: cfg.CatalogConfig.CacheTTL}
	}

	catalog := airports.NewCatalog(source, log)
	checker.AddChecker(&health.CatalogChecker{Catalog: catalog, Name: "catalog"})

	registry := planner.NewRegistry(log)
	detach := registry.Attach(catalog)
	defer detach()

	// The dataset loads in the background; sessions rehydrate once it lands.
	go func() {
		_ = catalog.Load(ctx)
	}()

	backend, err := savedRoutesBackend(cfg.SavedRoutesConfig, redisClient)
	if err != nil {
		log.Fatal(err, "Failed to set up saved route store")
	}
	store := savedroutes.NewStore(ctx, backend, log)

	climateClient := climate.NewClient(climate.Options{
		BaseURL:  cfg.ClimateConfig.BaseURL,
		HTTP:     retryhttp.Options{Timeout: 20 * time.Second},
		Cache:    shared,
		CacheTTL: cfg.ClimateConfig.CacheTTL,
		Logger:   log,
	})

	// Replicas sharing Redis elect one instance to purge shared cache entries.
	var elector *leader.Elector
	if redisClient != nil {
		elector = leader.NewElector(redisClient, leader.Options{Key: "flight-connections:leader:maintenance", Logger: log})
		elector.Start()
		defer elector.Stop()
	}

	scheduler := cron.New()
	if spec := cfg.ClimateConfig.CacheResetSchedule; spec != "" {
		if _, err := scheduler.AddFunc(spec, func() {
			climateClient.ClearCache()
			if elector != nil && elector.IsLeader() {
				if err := climateClient.PurgeShared(ctx); err != nil {
					log.Error(err, "Shared climate cache purge failed")
				}
			}
			log.Info("Climate cache cleared")
		}); err != nil {
			log.Warn("Invalid climate cache schedule, cache will not be reset", "schedule", spec, "error", err)
		}
	}
	if spec := cfg.PlannerConfig.SessionSweepSchedule; spec != "" {
		maxIdle := cfg.PlannerConfig.SessionMaxIdle
		if _, err := scheduler.AddFunc(spec, func() { registry.Expire(maxIdle) }); err != nil {
			log.Warn("Invalid session sweep schedule, idle sessions will not expire", "schedule", spec, "error", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	deps := api.Deps{
		Catalog:     catalog,
		Registry:    registry,
		SavedRoutes: store,
		Climate:     climateClient,
		Health:      checker,
		Cache:       shared,
		Origins:     cfg.CORSConfig.AllowedOrigins,
		Logger:      log,
	}
	if cfg.AuthConfig.JWTSecret != "" && redisClient != nil {
		verifier, err := identity.NewTokenVerifier(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)
		if err != nil {
			log.Fatal(err, "Invalid auth configuration")
		}
		deps.Verifier = verifier
		deps.Profiles = profile.NewRedisStore(redisClient)
	} else {
		log.Info("User profiles disabled", "reason", "AUTH_JWT_SECRET and Redis are both required")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.RegisterRoutes(router, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	log.Info("Server exited properly")
}

// catalogSource opens the configured airport source. Database sources are
// migrated and seeded from the bundled file when empty.
func catalogSource(ctx context.Context, cfg *config.Config, checker *health.HealthChecker, log *logger.Logger) (airports.Source, func(), error) {
	cc := cfg.CatalogConfig
	file := airports.FileSource{Path: cc.FilePath}
	noop := func() {}

	switch cc.Source {
	case config.CatalogSourceFile, "":
		return file, noop, nil

	case config.CatalogSourceHTTP:
		if cc.FeedURL == "" {
			return nil, nil, errors.New("CATALOG_FEED_URL is required for the http source")
		}
		return airports.NewHTTPSource(cc.FeedURL, retryhttp.Options{}), noop, nil

	case config.CatalogSourcePostgres:
		pg, err := db.NewPostgresDB(cfg.PostgresConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		seeded, err := pg.SeedAirportsIfEmpty(ctx, file)
		switch {
		case err != nil:
			log.Warn("Seeding airports failed", "error", err)
		case seeded:
			log.Info("Seeded airports from file", "path", cc.FilePath)
		}
		checker.AddCriticalChecker(&health.PostgresChecker{DB: pg, Name: "postgres"})
		return pg, func() { pg.Close() }, nil

	case config.CatalogSourceNeo4j:
		graph, err := db.NewNeo4jDB(cfg.Neo4jConfig)
		if err != nil {
			return nil, nil, err
		}
		if err := graph.InitSchema(); err != nil {
			graph.Close()
			return nil, nil, err
		}
		if err := seedGraphIfEmpty(ctx, graph, file); err != nil {
			log.Warn("Seeding route graph failed", "error", err)
		}
		checker.AddCriticalChecker(&health.Neo4jChecker{DB: graph, Name: "neo4j"})
		return graph, func() { graph.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cc.Source)
	}
}

func seedGraphIfEmpty(ctx context.Context, graph *db.Neo4jDB, src airports.Source) error {
	existing, err := graph.Airports(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	data, err := src.Airports(ctx)
	if err != nil {
		return err
	}
	return graph.ImportAirports(ctx, data)
}

func savedRoutesBackend(cfg config.SavedRoutesConfig, client *redis.Client) (savedroutes.Backend, error) {
	switch cfg.Backend {
	case config.SavedRoutesBackendFile, "":
		return savedroutes.FileBackend{Dir: cfg.DataDir, Namespace: cfg.Namespace}, nil
	case config.SavedRoutesBackendRedis:
		if client == nil {
			return nil, errors.New("the redis saved route backend requires REDIS_ENABLED=true")
		}
		return savedroutes.NewRedisBackend(client, cfg.Namespace), nil
	default:
		return nil, fmt.Errorf("unknown saved route backend %q", cfg.Backend)
	}
}
