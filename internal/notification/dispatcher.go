package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"trailsbuddy/internal/db"
	"trailsbuddy/internal/logger"
	"trailsbuddy/internal/metrics"
)

const (
	claimBatchSize    = 50
	staleClaimSeconds = 300
)

// payload is what the external delivery transport pops off the queue.
type payload struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	EventName string            `json:"event_name"`
	Data      map[string]string `json:"data"`
}

// Dispatcher drains the notification outbox into a redis list the delivery
// transport consumes. Delivery itself (FCM and friends) is outside this
// service.
type Dispatcher struct {
	pool     *sqlx.DB
	service  *Service
	redis    *redis.Client
	queue    string
	interval time.Duration
	maxRetry int
}

func NewDispatcher(pool *sqlx.DB, service *Service, redisClient *redis.Client, queue string, interval time.Duration, maxRetry int) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		service:  service,
		redis:    redisClient,
		queue:    queue,
		interval: interval,
		maxRetry: maxRetry,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	logger.Info("notification dispatcher started", "queue", d.queue, "interval", d.interval.String())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	if reclaimed, err := d.service.ReclaimStale(ctx, staleClaimSeconds); err != nil {
		logger.Error("failed to reclaim stale notifications", "error", err)
	} else if reclaimed > 0 {
		logger.Warn("reclaimed stale notification claims", "count", reclaimed)
	}

	var claimed []Request
	err := db.WithinTx(ctx, d.pool, func(tx *sqlx.Tx) error {
		var err error
		claimed, err = d.service.ClaimBatch(ctx, tx, claimBatchSize)
		return err
	})
	if err != nil {
		logger.Error("failed to claim notification batch", "error", err)
		return
	}

	for _, req := range claimed {
		d.deliver(ctx, req)
	}

	if length, err := d.redis.LLen(ctx, d.queue).Result(); err == nil {
		metrics.NotificationQueueLength.Set(float64(length))
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) {
	raw, err := json.Marshal(payload{
		ID:        req.ID,
		UserID:    req.UserID,
		EventName: req.EventName,
		Data:      req.Data,
	})
	if err != nil {
		logger.Error("bad notification payload", "id", req.ID, "error", err)
		if err := d.service.MarkRetry(ctx, req.ID, d.maxRetry, err.Error()); err != nil {
			logger.Error("failed to mark notification retry", "id", req.ID, "error", err)
		}
		return
	}

	if err := d.redis.LPush(ctx, d.queue, raw).Err(); err != nil {
		logger.Error("failed to queue notification", "id", req.ID, "attempt", req.RetryCount+1, "error", err)
		metrics.RecordNotification("retry")
		if err := d.service.MarkRetry(ctx, req.ID, d.maxRetry, err.Error()); err != nil {
			logger.Error("failed to mark notification retry", "id", req.ID, "error", err)
		}
		return
	}

	if err := d.service.MarkSent(ctx, req.ID); err != nil {
		logger.Error("failed to mark notification sent", "id", req.ID, "error", err)
		return
	}
	metrics.RecordNotification("sent")
	logger.Debug("notification queued", "id", req.ID, "event", req.EventName, "user_id", req.UserID)
}
