package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/repository"
	"mapmates-ledger/internal/util"
	"mapmates-ledger/pkg/db"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockAccountRepository is a mock implementation of repository.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	args := m.Called(ctx, q, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetAccountByUserID(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Account, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetAccountForUpdate(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Account, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) AddToBalance(ctx context.Context, q repository.DBExecutor, userID string, delta int64) error {
	args := m.Called(ctx, q, userID, delta)
	return args.Error(0)
}

func (m *MockAccountRepository) ListUserIDs(ctx context.Context, q repository.DBExecutor) ([]string, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAccountRepository) ListTopAccounts(ctx context.Context, q repository.DBExecutor, limit int) ([]domain.Account, error) {
	args := m.Called(ctx, q, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) GetStats(ctx context.Context, q repository.DBExecutor) (*domain.Stats, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

// MockEntryRepository is a mock implementation of repository.EntryRepository.
type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) AppendEntry(ctx context.Context, q repository.DBExecutor, entry *domain.Entry) error {
	args := m.Called(ctx, q, entry)
	return args.Error(0)
}

func (m *MockEntryRepository) GetEntriesByUserID(ctx context.Context, q repository.DBExecutor, userID string, limit, offset int) ([]domain.Entry, int64, error) {
	args := m.Called(ctx, q, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Entry), args.Get(1).(int64), args.Error(2)
}

func (m *MockEntryRepository) GetEntryByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Entry, error) {
	args := m.Called(ctx, q, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entry), args.Error(1)
}

// MockDBBeginner is a mock implementation of db.DBTxBeginner.
type MockDBBeginner struct {
	mock.Mock
}

func (m *MockDBBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	args := m.Called(ctx, opts)
	return &sqlx.Tx{}, args.Error(1)
}

// MockTxController is a mock implementation of db.TxController.
// It embeds MockDBExecutor so it also satisfies repository.DBExecutor, the
// same dual role *sqlx.Tx plays in production.
type MockTxController struct {
	mock.Mock
	MockDBExecutor
}

func (m *MockTxController) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxController) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// ledgerMocks bundles the mocks behind a service under test.
type ledgerMocks struct {
	accountRepo *MockAccountRepository
	entryRepo   *MockEntryRepository
	dbBeginner  *MockDBBeginner
	dbExecutor  *MockDBExecutor
	tx          *MockTxController
}

func newTestService(t *testing.T) (LedgerService, *ledgerMocks) {
	t.Helper()
	m := &ledgerMocks{
		accountRepo: new(MockAccountRepository),
		entryRepo:   new(MockEntryRepository),
		dbBeginner:  new(MockDBBeginner),
		dbExecutor:  new(MockDBExecutor),
		tx:          new(MockTxController),
	}
	svc := NewLedgerService(
		m.dbBeginner,
		m.dbExecutor,
		m.accountRepo,
		m.entryRepo,
		func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			return m.tx, nil
		},
		func(tx db.TxController) error {
			return m.tx.Commit()
		},
		func(tx db.TxController) {
			_ = m.tx.Rollback()
		},
		nil, // no cache in unit tests
		2,
	)
	return svc, m
}

func (m *ledgerMocks) assertAll(t *testing.T) {
	t.Helper()
	mock.AssertExpectationsForObjects(t, m.accountRepo, m.entryRepo, m.dbBeginner, m.dbExecutor, m.tx)
}

func TestEarn(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("SuccessfulEarn", func(t *testing.T) {
		svc, m := newTestService(t)

		account := &domain.Account{UserID: userID, Balance: 100}

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(account, nil).Once()
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.AnythingOfType("*domain.Entry")).Return(nil).Once()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, userID, int64(50)).Return(nil).Once()

		newBalance, entry, err := svc.Earn(ctx, userID, 50, "Place approved", "")

		assert.NoError(t, err)
		assert.Equal(t, int64(150), newBalance)
		assert.Equal(t, domain.DirectionEarn, entry.Direction)
		assert.Equal(t, int64(50), entry.Amount)
		assert.Equal(t, "Place approved", entry.Reason)

		m.assertAll(t)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		svc, m := newTestService(t)

		for _, amount := range []int64{0, -5} {
			newBalance, entry, err := svc.Earn(ctx, userID, amount, "Place approved", "")
			assert.ErrorIs(t, err, util.ErrInvalidAmount)
			assert.Zero(t, newBalance)
			assert.Nil(t, entry)
		}

		// No transaction is begun on an early validation failure.
		m.tx.AssertNotCalled(t, "Commit")
		m.tx.AssertNotCalled(t, "Rollback")
		m.assertAll(t)
	})

	t.Run("EmptyReason", func(t *testing.T) {
		svc, m := newTestService(t)

		_, _, err := svc.Earn(ctx, userID, 50, "   ", "")
		assert.ErrorIs(t, err, util.ErrInvalidReason)

		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})

	t.Run("AutoProvisionsUnknownAccount", func(t *testing.T) {
		svc, m := newTestService(t)

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(nil, util.ErrAccountNotFound).Once()
		m.accountRepo.On("CreateAccount", ctx, mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil).Once()
		// Welcome bonus entry, then the reward entry.
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.AnythingOfType("*domain.Entry")).Return(nil).Twice()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, userID, domain.WelcomeBonus).Return(nil).Once()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, userID, int64(20)).Return(nil).Once()

		newBalance, entry, err := svc.Earn(ctx, userID, 20, "Mini-game win", "")

		assert.NoError(t, err)
		assert.Equal(t, domain.WelcomeBonus+20, newBalance)
		assert.Equal(t, "Mini-game win", entry.Reason)

		m.assertAll(t)
	})

	t.Run("IdempotentReplay", func(t *testing.T) {
		svc, m := newTestService(t)

		key := "e7a3a9a0-8f4e-4f43-9a5f-1d2c3b4a5e6f"
		recorded := &domain.Entry{ID: 7, UserID: userID, Amount: 50, Direction: domain.DirectionEarn, Reason: "Place approved"}

		m.tx.On("Rollback").Return(nil).Once()
		m.entryRepo.On("GetEntryByIdempotencyKey", ctx, mock.Anything, key).Return(recorded, nil).Once()
		m.accountRepo.On("GetAccountByUserID", ctx, mock.Anything, userID).Return(&domain.Account{UserID: userID, Balance: 150}, nil).Once()

		newBalance, entry, err := svc.Earn(ctx, userID, 50, "Place approved", key)

		assert.NoError(t, err)
		assert.Equal(t, int64(150), newBalance)
		assert.Equal(t, recorded, entry)

		// A replay mutates nothing.
		m.entryRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything)
		m.accountRepo.AssertNotCalled(t, "AddToBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})
}

func TestSpend(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("SuccessfulSpend", func(t *testing.T) {
		svc, m := newTestService(t)

		account := &domain.Account{UserID: userID, Balance: 150}

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(account, nil).Once()
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.AnythingOfType("*domain.Entry")).Return(nil).Once()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, userID, int64(-20)).Return(nil).Once()

		newBalance, entry, err := svc.Spend(ctx, userID, 20, "Unlock chat", "")

		assert.NoError(t, err)
		assert.Equal(t, int64(130), newBalance)
		assert.Equal(t, domain.DirectionSpend, entry.Direction)
		assert.Equal(t, int64(20), entry.Amount)

		m.assertAll(t)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		svc, m := newTestService(t)

		account := &domain.Account{UserID: userID, Balance: 10}

		m.tx.On("Rollback").Return(nil).Once()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(account, nil).Once()

		newBalance, entry, err := svc.Spend(ctx, userID, 20, "Unlock chat", "")

		assert.ErrorIs(t, err, util.ErrInsufficientFunds)
		assert.Zero(t, newBalance)
		assert.Nil(t, entry)

		// A rejected spend writes nothing.
		m.entryRepo.AssertNotCalled(t, "AppendEntry", mock.Anything, mock.Anything, mock.Anything)
		m.accountRepo.AssertNotCalled(t, "AddToBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		svc, m := newTestService(t)

		m.tx.On("Rollback").Return(nil).Once()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(nil, util.ErrAccountNotFound).Once()

		_, _, err := svc.Spend(ctx, userID, 20, "Unlock chat", "")

		assert.ErrorIs(t, err, util.ErrAccountNotFound)
		m.accountRepo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything, mock.Anything)
		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})

	t.Run("AppendEntryError", func(t *testing.T) {
		svc, m := newTestService(t)

		account := &domain.Account{UserID: userID, Balance: 150}

		m.tx.On("Rollback").Return(nil).Once()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, userID).Return(account, nil).Once()
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.AnythingOfType("*domain.Entry")).Return(errors.New("db error")).Once()

		_, _, err := svc.Spend(ctx, userID, 20, "Unlock chat", "")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append entry")
		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("GrantsWelcomeBonus", func(t *testing.T) {
		svc, m := newTestService(t)

		m.tx.On("Commit").Return(nil).Once()
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accountRepo.On("CreateAccount", ctx, mock.Anything, mock.AnythingOfType("*domain.Account")).Return(nil).Once()
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.MatchedBy(func(e *domain.Entry) bool {
			return e.Amount == domain.WelcomeBonus && e.Direction == domain.DirectionEarn && e.Reason == WelcomeBonusReason
		})).Return(nil).Once()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, userID, domain.WelcomeBonus).Return(nil).Once()

		account, entry, err := svc.CreateAccount(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, domain.WelcomeBonus, account.Balance)
		assert.Equal(t, domain.WelcomeBonus, entry.Amount)

		m.assertAll(t)
	})

	t.Run("DuplicateAccount", func(t *testing.T) {
		svc, m := newTestService(t)

		m.tx.On("Rollback").Return(nil).Once()
		m.accountRepo.On("CreateAccount", ctx, mock.Anything, mock.AnythingOfType("*domain.Account")).Return(util.ErrDuplicateAccount).Once()

		_, _, err := svc.CreateAccount(ctx, userID)

		assert.ErrorIs(t, err, util.ErrDuplicateAccount)
		m.tx.AssertNotCalled(t, "Commit")
		m.assertAll(t)
	})
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("ReturnsBalance", func(t *testing.T) {
		svc, m := newTestService(t)

		m.accountRepo.On("GetAccountByUserID", ctx, m.dbExecutor, userID).Return(&domain.Account{UserID: userID, Balance: 130}, nil).Once()

		balance, err := svc.GetBalance(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, int64(130), balance)
		m.assertAll(t)
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		svc, m := newTestService(t)

		m.accountRepo.On("GetAccountByUserID", ctx, m.dbExecutor, userID).Return(nil, util.ErrAccountNotFound).Once()

		_, err := svc.GetBalance(ctx, userID)

		assert.ErrorIs(t, err, util.ErrAccountNotFound)
		m.assertAll(t)
	})
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	t.Run("ReturnsEntriesMostRecentFirst", func(t *testing.T) {
		svc, m := newTestService(t)

		entries := []domain.Entry{
			{ID: 3, UserID: userID, Amount: 20, Direction: domain.DirectionSpend, Reason: "Unlock chat"},
			{ID: 2, UserID: userID, Amount: 50, Direction: domain.DirectionEarn, Reason: "Place approved"},
		}
		m.accountRepo.On("GetAccountByUserID", ctx, m.dbExecutor, userID).Return(&domain.Account{UserID: userID, Balance: 130}, nil).Once()
		m.entryRepo.On("GetEntriesByUserID", ctx, m.dbExecutor, userID, 20, 0).Return(entries, int64(3), nil).Once()

		got, total, err := svc.GetHistory(ctx, userID, 20, 0)

		assert.NoError(t, err)
		assert.Equal(t, entries, got)
		assert.Equal(t, int64(3), total)
		m.assertAll(t)
	})

	t.Run("AccountNotFound", func(t *testing.T) {
		svc, m := newTestService(t)

		m.accountRepo.On("GetAccountByUserID", ctx, m.dbExecutor, userID).Return(nil, util.ErrAccountNotFound).Once()

		_, _, err := svc.GetHistory(ctx, userID, 20, 0)

		assert.ErrorIs(t, err, util.ErrAccountNotFound)
		m.assertAll(t)
	})
}

func TestBroadcastEarn(t *testing.T) {
	ctx := context.Background()

	t.Run("PartialFailure", func(t *testing.T) {
		svc, m := newTestService(t)

		// Three accounts; the middle one has a storage fault injected.
		m.accountRepo.On("ListUserIDs", ctx, m.dbExecutor).Return([]string{"a", "b", "c"}, nil).Once()

		m.tx.On("Commit").Return(nil).Times(2)
		m.tx.On("Rollback").Return(nil).Maybe()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, "a").Return(&domain.Account{UserID: "a", Balance: 100}, nil).Once()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, "b").Return(nil, util.ErrStorageUnavailable).Once()
		m.accountRepo.On("GetAccountForUpdate", ctx, mock.Anything, "c").Return(&domain.Account{UserID: "c", Balance: 0}, nil).Once()
		m.entryRepo.On("AppendEntry", ctx, mock.Anything, mock.AnythingOfType("*domain.Entry")).Return(nil).Times(2)
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, "a", int64(50)).Return(nil).Once()
		m.accountRepo.On("AddToBalance", ctx, mock.Anything, "c", int64(50)).Return(nil).Once()

		result, err := svc.BroadcastEarn(ctx, 50, "Global reward from admin")

		assert.NoError(t, err)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 2, result.Succeeded)
		assert.Len(t, result.Failures, 1)
		assert.Equal(t, "b", result.Failures[0].UserID)
		assert.Contains(t, result.Failures[0].Error, util.ErrStorageUnavailable.Error())

		m.assertAll(t)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		svc, m := newTestService(t)

		_, err := svc.BroadcastEarn(ctx, 0, "Global reward from admin")

		assert.ErrorIs(t, err, util.ErrInvalidAmount)
		m.accountRepo.AssertNotCalled(t, "ListUserIDs", mock.Anything, mock.Anything)
		m.assertAll(t)
	})
}

func TestLeaderboardAndStats(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaderboard", func(t *testing.T) {
		svc, m := newTestService(t)

		top := []domain.Account{
			{UserID: "a", Balance: 300},
			{UserID: "b", Balance: 120},
		}
		m.accountRepo.On("ListTopAccounts", ctx, m.dbExecutor, 10).Return(top, nil).Once()

		got, err := svc.Leaderboard(ctx, 10)

		assert.NoError(t, err)
		assert.Equal(t, top, got)
		m.assertAll(t)
	})

	t.Run("Stats", func(t *testing.T) {
		svc, m := newTestService(t)

		m.accountRepo.On("GetStats", ctx, m.dbExecutor).Return(&domain.Stats{TotalAccounts: 2, TotalMapos: 420}, nil).Once()

		stats, err := svc.Stats(ctx)

		assert.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalAccounts)
		assert.Equal(t, int64(420), stats.TotalMapos)
		m.assertAll(t)
	})
}
