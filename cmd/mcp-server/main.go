package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/config"
	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/buildinfo"
	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/pkg/retryhttp"
	"github.com/gilby125/flight-connections/profile"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	log := logger.NewWithWriter(logger.Config{Level: cfg.LoggingConfig.Level, Format: "text"}, os.Stderr)
	ctx := context.Background()

	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisConfig.Host, cfg.RedisConfig.Port),
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer redisClient.Close()
	}

	var source airports.Source = airports.FileSource{Path: cfg.CatalogConfig.FilePath}
	if cfg.CatalogConfig.Source == config.CatalogSourceHTTP && cfg.CatalogConfig.FeedURL != "" {
		source = airports.NewHTTPSource(cfg.CatalogConfig.FeedURL, retryhttp.Options{})
	}
	if redisClient != nil && cfg.CatalogConfig.CacheTTL > 0 {
		shared := cache.NewCacheManager(cache.NewRedisCache(redisClient, "flight-connections"))
		source = &airports.CachedSource{Source: source, Cache: shared, TTL: cfg.CatalogConfig.CacheTTL}
	}

	tools := newToolset(ctx, source, log)
	if token := os.Getenv("MCP_ID_TOKEN"); token != "" && cfg.AuthConfig.JWTSecret != "" {
		verifier, err := identity.NewTokenVerifier(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error configuring identity: %v\n", err)
			os.Exit(1)
		}
		tools.session = identity.NewSession(identity.TokenProvider{Verifier: verifier, Token: token}, log)
		if redisClient != nil {
			tools.syncer = profile.NewSyncer(profile.NewRedisStore(redisClient), log)
			detach := tools.syncer.Attach(ctx, tools.session)
			defer detach()
			defer tools.syncer.Close()
		}
	}

	s := server.NewMCPServer(
		"flight-connections-mcp",
		buildinfo.Version,
		server.WithLogging(),
	)
	tools.register(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
