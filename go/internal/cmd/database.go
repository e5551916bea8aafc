package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev12/turingroom/go/internal/dbconfig"
	"github.com/mcdev12/turingroom/go/internal/game/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// setupStore opens the snapshot store named by STORE: "postgres" (default),
// "redis" or "memory".
// The returned close func is never nil.
func setupStore(ctx context.Context) (store.Store, func(), error) {
	switch backend := getEnv("STORE", "postgres"); backend {
	case "memory":
		log.Warn().Msg("using in-memory store, room history is lost on restart")
		return store.NewMemory(), func() {}, nil
	case "postgres":
		dbConfig := dbconfig.NewConfigFromEnv()
		database, err := dbConfig.Open(ctx)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(database)
		if err := pg.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		log.Info().Str("database", dbConfig.Redacted()).Msg("connected to database")
		return pg, closer(database), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		ttl := getEnvAsDuration("REDIS_FINISHED_TTL", 7*24*time.Hour)
		log.Info().
			Str("addr", client.Options().Addr).
			Dur("finished_ttl", ttl).
			Msg("connected to redis")
		return store.NewRedis(client, getEnv("REDIS_PREFIX", store.DefaultRedisPrefix), ttl), func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE backend %q", backend)
	}
}

func closer(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
