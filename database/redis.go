package database

import (
	"context"
	"log"

	config "github.com/anjiri1684/property_manager/configs"
	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// ConnectRedis leaves RDB nil when REDIS_ADDR is unset or unreachable; callers then fall
// back to per-process caching.
func ConnectRedis(ctx context.Context) {
	addr := config.Config("REDIS_ADDR")
	if addr == "" {
		log.Println("⚠️ REDIS_ADDR not set, gateway tokens will be cached per process")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Config("REDIS_PASSWORD"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ Could not reach Redis at %s: %v", addr, err)
		_ = client.Close()
		return
	}

	RDB = client
	log.Println("✅ Redis connected successfully")
}
