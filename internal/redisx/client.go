package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
}
