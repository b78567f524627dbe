package revocation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/calculator/pkg/config"
	"github.com/Skotchmaster/calculator/pkg/tokens"
)

// Store records revoked token ids until they would have expired anyway.
// Implementations are safe for concurrent use.
type Store interface {
	tokens.RevocationStore
	Ping(ctx context.Context) error
	Close() error
}

// New builds the backend named by cfg.RevocationBackend. gdb is only used by
// the database backend.
func New(ctx context.Context, cfg config.Config, gdb *gorm.DB) (Store, error) {
	switch cfg.RevocationBackend {
	case config.RevocationRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   DefaultPrefix,
		})
	case config.RevocationMemory:
		return NewMemoryStore(time.Minute), nil
	case config.RevocationDatabase:
		if gdb == nil {
			return nil, fmt.Errorf("revocation: database backend needs a db handle")
		}
		return NewGormStore(gdb), nil
	default:
		return nil, fmt.Errorf("revocation: unknown backend %q", cfg.RevocationBackend)
	}
}
