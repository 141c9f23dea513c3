package history

import (
	"context"
	"fmt"
	"io"

	"dydownloader/internal/config"
)

// Open builds the storage backend selected by cfg. The returned closer
// releases backend connections and is never nil.
func Open(ctx context.Context, cfg config.HistoryConfig) (Storage, io.Closer, error) {
	switch cfg.Backend {
	case "", config.HistoryBackendFile:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("history path is empty")
		}
		return NewFileStorage(cfg.Path), nopCloser{}, nil

	case config.HistoryBackendRedis:
		client := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if client == nil {
			return nil, nil, fmt.Errorf("redis address is empty")
		}
		storage := NewRedisStorage(client, cfg.Key)
		if err := storage.Ping(ctx); err != nil {
			log.Warning("Redis at %s is not reachable yet: %v", cfg.RedisAddr, err)
		}
		return storage, storage, nil

	case config.HistoryBackendBlob:
		key := cfg.Key
		if key != "" {
			key += ".json"
		}
		storage, err := OpenBlobStorage(ctx, cfg.BlobURL, key)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage, nil

	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
