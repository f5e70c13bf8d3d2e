package assets

import (
	"context"

	"go.uber.org/zap"

	"canteen/internal/queue"
)

// RemoveJob is the queue message type for deleting a stored image.
const RemoveJob = "asset.remove"

// Janitor removes images in the background so request handlers never wait
// on storage cleanup.
type Janitor struct {
	store Store
	queue queue.Queue
	log   *zap.Logger
}

// NewJanitor wires a store to a queue.
func NewJanitor(store Store, q queue.Queue, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{store: store, queue: q, log: log}
}

// ScheduleRemoval enqueues deletion of the key's image.
func (j *Janitor) ScheduleRemoval(ctx context.Context, key string) error {
	return j.queue.Publish(ctx, queue.NewMessage(RemoveJob, []byte(key)))
}

// Run consumes removal jobs until ctx is done. Failures are logged and dropped.
func (j *Janitor) Run(ctx context.Context) error {
	msgs, err := j.queue.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		j.handle(ctx, msg)
	}
	return nil
}

func (j *Janitor) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != RemoveJob {
		j.log.Warn("unknown job type", zap.String("type", msg.Type), zap.String("job_id", msg.ID))
		return
	}
	key := string(msg.Body)
	if err := j.store.Remove(ctx, key); err != nil {
		j.log.Error("asset removal failed", zap.String("key", key), zap.String("job_id", msg.ID), zap.Error(err))
		return
	}
	j.log.Info("asset removed", zap.String("key", key), zap.String("job_id", msg.ID))
}
