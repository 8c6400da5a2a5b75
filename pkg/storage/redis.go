package storage

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClient returns a client for the URL and notification caches. An
// empty address disables them.
func RedisClient(address string, port int) *redis.Client {
	if address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", address, port),
		Password: "",
		DB:       0, // use default DB
	})
}
