package memory

import (
	"context"
	"fmt"
	"log"
	"os"

	"shadybot/pkg/cache"
	"shadybot/pkg/config"
	"shadybot/pkg/surreal"
)

// Open builds the Store selected by cfg.Storage.Driver. When REDIS_URL is
// set, settings reads go through a Redis cache.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var store Store

	switch cfg.Storage.Driver {
	case "surreal":
		s, err := openSurreal(ctx)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		log.Printf("Opening SQLite store at %s", cfg.Storage.Path)
		s, err := NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		store = s
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c, err := cache.NewRedisCache(redisURL, "shadybot")
		if err != nil {
			log.Printf("Warning: Redis unavailable, settings cache disabled: %v", err)
		} else {
			log.Println("Redis settings cache enabled")
			store = NewCachedStore(store, c)
		}
	}

	return store, nil
}

func openSurreal(ctx context.Context) (*SurrealStore, error) {
	surrealHost := os.Getenv("SURREAL_DB_HOST")
	surrealUser := os.Getenv("SURREAL_DB_USER")
	surrealPass := os.Getenv("SURREAL_DB_PASS")
	surrealNS := os.Getenv("SURREAL_DB_NAMESPACE")
	surrealDB := os.Getenv("SURREAL_DB_DATABASE")

	if surrealHost == "" || surrealUser == "" || surrealPass == "" {
		return nil, fmt.Errorf("surreal storage needs SURREAL_DB_HOST, SURREAL_DB_USER and SURREAL_DB_PASS")
	}
	if surrealNS == "" {
		surrealNS = "shadybot"
	}
	if surrealDB == "" {
		surrealDB = "archive"
	}

	log.Printf("Connecting to SurrealDB at %s (NS: %s, DB: %s)", surreal.NormalizeHost(surrealHost), surrealNS, surrealDB)
	client, err := surreal.NewClient(ctx, surrealHost, surrealUser, surrealPass, surrealNS, surrealDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	return NewSurrealStore(ctx, client), nil
}
