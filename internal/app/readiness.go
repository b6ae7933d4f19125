package app

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is the slice of the database pool the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorePinger is the slice of the object store client the readiness probe
// needs.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns the db, redis and object-store probes for
// the readiness endpoint. A nil dependency yields a nil check, which the
// handler skips, so each deployment reports only what it actually wires.
func BuildReadinessChecks(pool Pinger, rdb *redis.Client, store StorePinger) (dbCheck, redisCheck, storeCheck func(ctx context.Context) error) {
	if pool != nil {
		dbCheck = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if store != nil {
		storeCheck = func(ctx context.Context) error { return store.Ping(ctx) }
	}
	return dbCheck, redisCheck, storeCheck
}
