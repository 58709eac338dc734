package notification

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requestCols = []string{"id", "user_id", "event_name", "data", "status", "retry_count", "error_reason", "created_at", "updated_at"}

func setupMock(t *testing.T) (*Service, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	sqlxDB := sqlx.NewDb(raw, "sqlmock")
	return NewService(sqlxDB), sqlxDB, mock
}

func TestSubmit_InsertsNewRow(t *testing.T) {
	svc, sqlxDB, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notification_requests (user_id, event_name, data, status)`)).
		WithArgs(int64(42), "contest.win", sqlmock.AnyArg(), StatusNew).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := svc.Submit(context.Background(), sqlxDB, 42, "contest.win", map[string]string{"prize": "500"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_UsesCallerTransaction(t *testing.T) {
	svc, sqlxDB, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notification_requests`)).
		WithArgs(int64(42), "contest.cancelled", sqlmock.AnyArg(), StatusNew).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, svc.Submit(context.Background(), tx, 42, "contest.cancelled", nil))
	// Caller aborts: the notification row must go away with the rollback.
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBatch(t *testing.T) {
	svc, sqlxDB, mock := setupMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE notification_requests`)).
		WithArgs(StatusReadyToSend, StatusNew, 10).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow(int64(1), int64(42), "contest.win", []byte(`{"prize":"500"}`), StatusReadyToSend, 0, nil, time.Now(), time.Now()))
	mock.ExpectCommit()

	tx, err := sqlxDB.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	claimed, err := svc.ClaimBatch(context.Background(), tx, 10)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Len(t, claimed, 1)
	assert.Equal(t, "contest.win", claimed[0].EventName)
	assert.Equal(t, "500", claimed[0].Data["prize"])
}

func TestMarkRetry(t *testing.T) {
	svc, _, mock := setupMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_requests`)).
		WithArgs(3, StatusError, StatusNew, "connection refused", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.MarkRetry(context.Background(), 7, 3, "connection refused")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherDeliver_PushesAndMarksSent(t *testing.T) {
	svc, sqlxDB, mock := setupMock(t)
	redisClient, redisMock := redismock.NewClientMock()

	d := NewDispatcher(sqlxDB, svc, redisClient, "notifications", time.Second, 3)

	req := Request{ID: 7, UserID: 42, EventName: "contest.win", Data: Data{"prize": "500"}}
	wantPayload := `{"id":7,"user_id":42,"event_name":"contest.win","data":{"prize":"500"}}`

	redisMock.ExpectLPush("notifications", []byte(wantPayload)).SetVal(1)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_requests`)).
		WithArgs(StatusSent, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d.deliver(context.Background(), req)

	assert.NoError(t, redisMock.ExpectationsWereMet())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherDeliver_PushFailureRetries(t *testing.T) {
	svc, sqlxDB, mock := setupMock(t)
	redisClient, redisMock := redismock.NewClientMock()

	d := NewDispatcher(sqlxDB, svc, redisClient, "notifications", time.Second, 3)

	req := Request{ID: 7, UserID: 42, EventName: "contest.win", Data: Data{}}

	redisMock.CustomMatch(func(expected, actual []interface{}) error { return nil }).
		ExpectLPush("notifications", []byte(`{"id":7,"user_id":42,"event_name":"contest.win","data":{}}`)).
		SetErr(assert.AnError)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_requests`)).
		WithArgs(3, StatusError, StatusNew, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d.deliver(context.Background(), req)

	assert.NoError(t, mock.ExpectationsWereMet())
}
