package config

// Redis backs the change feed stream, the token bucket, the trip cache and
// the asynq sweep queue.  Connection settings come from REDIS_* variables.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment.
//
//	REDIS_ADDR             host:port (default localhost:6379)
//	REDIS_HOST, REDIS_PORT override REDIS_ADDR when both are set
//	REDIS_PASSWORD         optional
//	REDIS_DB               database number (default 0)
//	REDIS_TLS              "true" or "1" enables TLS
func RedisOptions() *redis.Options {
	addr := getenv("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	opt := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt
}

// NewRedisClient connects and pings with a short timeout.  It returns nil
// when Redis is unreachable so callers can degrade: no cache, no rate
// limit and the in-process feed.
func NewRedisClient() *redis.Client {
	client := redis.NewClient(RedisOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

// AsynqRedis mirrors RedisOptions for the asynq server and scheduler.
func AsynqRedis() asynq.RedisClientOpt {
	o := RedisOptions()
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}
