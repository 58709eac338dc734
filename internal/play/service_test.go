package play

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/db"
	"trailsbuddy/internal/money"
)

type MockContestStore struct{ mock.Mock }

func (m *MockContestStore) GetByID(ctx context.Context, q db.Queryer, id int64) (*contest.Contest, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contest.Contest), args.Error(1)
}

func (m *MockContestStore) ActiveQuestions(ctx context.Context, q db.Queryer, contestID int64) ([]contest.Question, error) {
	args := m.Called(ctx, q, contestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]contest.Question), args.Error(1)
}

type MockTrackerStore struct{ mock.Mock }

func (m *MockTrackerStore) Get(ctx context.Context, q db.Queryer, contestID, userID int64) (*Tracker, error) {
	args := m.Called(ctx, q, contestID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tracker), args.Error(1)
}

func (m *MockTrackerStore) GetOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error) {
	args := m.Called(ctx, tx, contestID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tracker), args.Error(1)
}

func (m *MockTrackerStore) GetForUpdate(ctx context.Context, tx *sqlx.Tx, contestID, userID int64) (*Tracker, error) {
	args := m.Called(ctx, tx, contestID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tracker), args.Error(1)
}

func (m *MockTrackerStore) MarkPaid(ctx context.Context, tx *sqlx.Tx, trackerID, walletTransactionID int64, paid money.Money) error {
	return m.Called(ctx, tx, trackerID, walletTransactionID, paid).Error(0)
}

func (m *MockTrackerStore) MarkStarted(ctx context.Context, tx *sqlx.Tx, trackerID int64, totalQuestions int) error {
	return m.Called(ctx, tx, trackerID, totalQuestions).Error(0)
}

func (m *MockTrackerStore) AppendResume(ctx context.Context, q db.Queryer, contestID, userID int64, at time.Time) error {
	return m.Called(ctx, q, contestID, userID, at).Error(0)
}

func (m *MockTrackerStore) SaveAnswer(ctx context.Context, tx *sqlx.Tx, trackerID int64, answers Answers, score int, finished bool) error {
	return m.Called(ctx, tx, trackerID, answers, score, finished).Error(0)
}

func (m *MockTrackerStore) MarkFinished(ctx context.Context, q db.Queryer, contestID, userID int64) error {
	return m.Called(ctx, q, contestID, userID).Error(0)
}

type MockLedger struct{ mock.Mock }

func (m *MockLedger) Balance(ctx context.Context, q db.Queryer, userID int64) (money.Money, error) {
	args := m.Called(ctx, q, userID)
	return args.Get(0).(money.Money), args.Error(1)
}

func (m *MockLedger) DebitEntryFee(ctx context.Context, tx *sqlx.Tx, userID int64, fee money.Money, contestTitle string) (int64, error) {
	args := m.Called(ctx, tx, userID, fee, contestTitle)
	return args.Get(0).(int64), args.Error(1)
}

func setupService(t *testing.T) (*Service, *MockContestStore, *MockTrackerStore, *MockLedger, sqlmock.Sqlmock) {
	t.Helper()
	raw, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	contests := &MockContestStore{}
	trackers := &MockTrackerStore{}
	ledger := &MockLedger{}
	svc := NewService(sqlx.NewDb(raw, "sqlmock"), contests, trackers, ledger)
	return svc, contests, trackers, ledger, sqlMock
}

func activeContest(fee, maxBonus int64) *contest.Contest {
	now := time.Now()
	return &contest.Contest{
		ID:               1,
		Title:            "Weekend Movie Quiz",
		EntryFee:         fee,
		EntryFeeMaxBonus: maxBonus,
		Status:           contest.StatusActive,
		StartTime:        now.Add(-time.Hour),
		EndTime:          now.Add(time.Hour),
	}
}

func TestPay_SplitsFeeAndMarksPaid(t *testing.T) {
	svc, contests, trackers, ledger, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(100, 20), nil)
	trackers.On("GetOrCreateForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusInit}, nil)
	ledger.On("Balance", mock.Anything, mock.Anything, int64(42)).Return(money.New(500, 60), nil)
	ledger.On("DebitEntryFee", mock.Anything, mock.Anything, int64(42), money.New(80, 20), "Weekend Movie Quiz").
		Return(int64(77), nil)
	trackers.On("MarkPaid", mock.Anything, mock.Anything, int64(9), int64(77), money.New(80, 20)).Return(nil)

	err := svc.Pay(context.Background(), 42, 1, 20)
	require.NoError(t, err)
	trackers.AssertExpectations(t)
	ledger.AssertExpectations(t)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestPay_InsufficientFundsRollsBack(t *testing.T) {
	svc, contests, trackers, ledger, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(100, 20), nil)
	trackers.On("GetOrCreateForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusInit}, nil)
	ledger.On("Balance", mock.Anything, mock.Anything, int64(42)).Return(money.New(79, 20), nil)

	err := svc.Pay(context.Background(), 42, 1, 20)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	ledger.AssertNotCalled(t, "DebitEntryFee", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestPay_BonusAboveMaxRejected(t *testing.T) {
	svc, contests, _, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(100, 20), nil)

	err := svc.Pay(context.Background(), 42, 1, 21)
	assert.ErrorIs(t, err, ErrInvalidBonusSplit)
}

func TestPay_AlreadyPaid(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(100, 20), nil)
	trackers.On("GetOrCreateForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusPaid}, nil)

	err := svc.Pay(context.Background(), 42, 1, 0)
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestStart_RequiresPaymentForPaidContest(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(100, 20), nil)
	trackers.On("GetOrCreateForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusInit}, nil)

	err := svc.Start(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrNotPaid)
}

func TestStart_FreeContestFromInit(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(activeContest(0, 0), nil)
	trackers.On("GetOrCreateForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusInit}, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{{QuestionNo: 1, Active: true}, {QuestionNo: 2, Active: true}}, nil)
	trackers.On("MarkStarted", mock.Anything, mock.Anything, int64(9), 2).Return(nil)

	err := svc.Start(context.Background(), 42, 1)
	require.NoError(t, err)
	trackers.AssertExpectations(t)
}

func TestStart_OutsideWindow(t *testing.T) {
	svc, contests, _, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	c := activeContest(0, 0)
	c.StartTime = time.Now().Add(time.Hour)
	c.EndTime = time.Now().Add(2 * time.Hour)
	contests.On("GetByID", mock.Anything, mock.Anything, int64(1)).Return(c, nil)

	err := svc.Start(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrContestNotRunning)
}

func quizQuestion(no, correctID int) contest.Question {
	return contest.Question{
		QuestionNo: no,
		Active:     true,
		Options: contest.Options{
			{ID: 1, Text: "A", Correct: correctID == 1},
			{ID: 2, Text: "B", Correct: correctID == 2},
		},
	}
}

func TestAnswer_CorrectLastQuestionFinishes(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	tracker := &Tracker{
		ID:      9,
		Status:  StatusStarted,
		Score:   1,
		Answers: Answers{{QuestionNo: 1, SelectedOptionID: 2, Correct: true}},
	}
	trackers.On("GetForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).Return(tracker, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{quizQuestion(1, 2), quizQuestion(2, 1)}, nil)
	trackers.On("SaveAnswer", mock.Anything, mock.Anything, int64(9), mock.Anything, 2, true).Return(nil)

	result, err := svc.Answer(context.Background(), 42, 1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.True(t, result.Finished)
	trackers.AssertExpectations(t)
}

func TestAnswer_WrongOptionDoesNotScore(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectCommit()

	tracker := &Tracker{ID: 9, Status: StatusStarted}
	trackers.On("GetForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).Return(tracker, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{quizQuestion(1, 2), quizQuestion(2, 1)}, nil)
	trackers.On("SaveAnswer", mock.Anything, mock.Anything, int64(9), mock.Anything, 0, false).Return(nil)

	result, err := svc.Answer(context.Background(), 42, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.False(t, result.Finished)
}

func TestAnswer_RepeatRejected(t *testing.T) {
	svc, _, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	tracker := &Tracker{
		ID:      9,
		Status:  StatusStarted,
		Answers: Answers{{QuestionNo: 1, SelectedOptionID: 2, Correct: true}},
	}
	trackers.On("GetForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).Return(tracker, nil)

	_, err := svc.Answer(context.Background(), 42, 1, 1, 1)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
}

func TestAnswer_UnknownQuestion(t *testing.T) {
	svc, contests, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	trackers.On("GetForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusStarted}, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{quizQuestion(1, 2)}, nil)

	_, err := svc.Answer(context.Background(), 42, 1, 5, 1)
	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestAnswer_NotStarted(t *testing.T) {
	svc, _, trackers, _, sqlMock := setupService(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectRollback()

	trackers.On("GetForUpdate", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusPaid}, nil)

	_, err := svc.Answer(context.Background(), 42, 1, 1, 1)
	assert.ErrorIs(t, err, ErrWrongStatus)
}

func TestNextQuestion_HidesCorrectFlag(t *testing.T) {
	svc, contests, trackers, _, _ := setupService(t)
	svc.randInt = func(int) int { return 0 }

	trackers.On("Get", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusStarted}, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{quizQuestion(1, 2)}, nil)

	view, err := svc.NextQuestion(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.QuestionNo)
	require.Len(t, view.Options, 2)
}

func TestNextQuestion_AllAnswered(t *testing.T) {
	svc, contests, trackers, _, _ := setupService(t)
	svc.randInt = func(int) int { return 1 }

	trackers.On("Get", mock.Anything, mock.Anything, int64(1), int64(42)).
		Return(&Tracker{ID: 9, Status: StatusStarted, Answers: Answers{{QuestionNo: 1}, {QuestionNo: 2}}}, nil)
	contests.On("ActiveQuestions", mock.Anything, mock.Anything, int64(1)).
		Return([]contest.Question{quizQuestion(1, 2), quizQuestion(2, 1)}, nil)

	_, err := svc.NextQuestion(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrAllAnswered)
}
