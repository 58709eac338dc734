package notification

import (
	"context"

	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/db"
)

type Service struct {
	pool *sqlx.DB
}

func NewService(pool *sqlx.DB) *Service {
	return &Service{pool: pool}
}

// Submit enqueues a notification request in New status using the caller's
// executor. Passing an open transaction makes the enqueue atomic with the
// business write that triggered it.
func (s *Service) Submit(ctx context.Context, q db.Queryer, userID int64, eventName string, data map[string]string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notification_requests (user_id, event_name, data, status)
		 VALUES ($1, $2, $3, $4)`,
		userID, eventName, Data(data), StatusNew,
	)
	return err
}

// ClaimBatch moves up to limit New requests to ReadyToSend and returns
// them. SKIP LOCKED keeps concurrent dispatchers from claiming the same
// rows.
func (s *Service) ClaimBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]Request, error) {
	var requests []Request
	err := tx.SelectContext(ctx, &requests,
		`UPDATE notification_requests
		 SET status = $1, updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM notification_requests
		   WHERE status = $2
		   ORDER BY created_at ASC
		   LIMIT $3
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`,
		StatusReadyToSend, StatusNew, limit,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *Service) MarkSent(ctx context.Context, id int64) error {
	_, err := s.pool.ExecContext(ctx,
		`UPDATE notification_requests
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2`,
		StatusSent, id,
	)
	return err
}

// MarkRetry puts a failed request back to New, or to Error once the retry
// budget is spent.
func (s *Service) MarkRetry(ctx context.Context, id int64, maxRetry int, reason string) error {
	_, err := s.pool.ExecContext(ctx,
		`UPDATE notification_requests
		 SET retry_count = retry_count + 1,
		     status = CASE WHEN retry_count + 1 >= $1 THEN $2::text ELSE $3::text END,
		     error_reason = $4,
		     updated_at = NOW()
		 WHERE id = $5`,
		maxRetry, StatusError, StatusNew, reason, id,
	)
	return err
}

// ReclaimStale returns requests stuck in ReadyToSend (a dispatcher died
// between claim and push) to New.
func (s *Service) ReclaimStale(ctx context.Context, olderThanSeconds int) (int64, error) {
	res, err := s.pool.ExecContext(ctx,
		`UPDATE notification_requests
		 SET status = $1, updated_at = NOW()
		 WHERE status = $2 AND updated_at < NOW() - ($3 * INTERVAL '1 second')`,
		StatusNew, StatusReadyToSend, olderThanSeconds,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
