package redis

import (
	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// Overlay replaces the admission repositories of repos with Redis-backed ones
// and adds a Redis health check. Credentials stay where they are. The client
// is closed by repos.Close after the previous cleanup runs.
func Overlay(repos *repository.Repositories, client *goredis.Client, prefix string) error {
	if repos == nil || client == nil {
		return repository.ErrNilDatabase
	}

	repos.Blocks = NewBlockRepository(client, prefix)
	repos.RateLimits = NewRateLimitRepository(client, prefix)
	repos.Health = append(repos.Health, NewHealthRepository(client))
	repos.AdmissionStore = repository.AdmissionStoreRedis

	previous := repos.Cleanup
	repos.Cleanup = func() {
		if previous != nil {
			previous()
		}
		client.Close()
	}
	return nil
}
