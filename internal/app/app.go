// Package app assembles the components shared by the API and the worker.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"canteen/internal/assets"
	"canteen/internal/cache"
	"canteen/internal/config"
	"canteen/internal/mess"
	"canteen/internal/queue"
	"canteen/internal/slot"
	"canteen/internal/store"
)

// Components are the long-lived pieces built from config.
type Components struct {
	DB      *store.DB
	Redis   *store.Redis
	Service *mess.Service
	Photos  assets.Store
	Queue   queue.Queue
	Janitor *assets.Janitor
	// LocalPhotos is set when photos live on disk and must be served under /static.
	LocalPhotos *assets.Local
}

// Build opens the store and wires the service, photo storage and cleanup queue.
func Build(cfg config.App, log *zap.Logger) (*Components, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	slots, err := slot.Parse(cfg.SlotStarts)
	if err != nil {
		return nil, fmt.Errorf("slot starts: %w", err)
	}

	store.SetMigrationLogger(log)
	db, err := store.Open(cfg.DBDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	c := &Components{DB: db, Redis: store.NewRedis(cfg.RedisAddr)}

	opts := []mess.Option{mess.WithLocation(loc), mess.WithLogger(log.Named("mess"))}
	if tc := cache.NewSlotTokens(c.Redis); tc != nil {
		opts = append(opts, mess.WithTokenCache(tc))
	}
	c.Service = mess.NewService(mess.NewRepository(db), slots, opts...)

	if cfg.CloudinaryEnabled() {
		c.Photos = assets.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("photos stored in cloudinary", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		local, err := assets.NewLocal(cfg.StaticDir, "/static")
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Photos, c.LocalPhotos = local, local
		log.Info("photos stored on disk", zap.String("dir", cfg.StaticDir))
	}

	if cfg.QueueBackend == "redis" {
		if c.Redis == nil {
			c.Close()
			return nil, fmt.Errorf("QUEUE_BACKEND=redis needs REDIS_ADDR")
		}
		c.Queue = queue.NewRedisQueue(c.Redis.Client, store.Key("queue", "assets"))
	} else {
		c.Queue = queue.NewInMemory(64)
	}
	c.Janitor = assets.NewJanitor(c.Photos, c.Queue, log.Named("janitor"))
	return c, nil
}

// Close releases the database and Redis connections.
func (c *Components) Close() {
	_ = c.DB.Close()
	_ = c.Redis.Close()
}
