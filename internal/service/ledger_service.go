package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mapmates-ledger/internal/cache"
	"mapmates-ledger/internal/domain"
	"mapmates-ledger/internal/repository"
	"mapmates-ledger/internal/util"
	"mapmates-ledger/pkg/db"
)

// WelcomeBonusReason labels the entry created when an account is provisioned.
const WelcomeBonusReason = "Welcome bonus"

// LedgerService defines the interface for Mapos ledger business logic.
// It is the only component permitted to change an account's balance.
type LedgerService interface {
	CreateAccount(ctx context.Context, userID string) (*domain.Account, *domain.Entry, error)
	Earn(ctx context.Context, userID string, amount int64, reason, idemKey string) (int64, *domain.Entry, error)
	Spend(ctx context.Context, userID string, amount int64, reason, idemKey string) (int64, *domain.Entry, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]domain.Entry, int64, error)
	BroadcastEarn(ctx context.Context, amount int64, reason string) (*BroadcastResult, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Account, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

// BroadcastFailure records one account that a broadcast could not credit.
type BroadcastFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// BroadcastResult aggregates the per-account outcomes of a BroadcastEarn.
type BroadcastResult struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failures  []BroadcastFailure `json:"failures"`
}

// ledgerService implements the LedgerService interface.
type ledgerService struct {
	dbBeginner       db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	dbExecutor       repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	accountRepo      repository.AccountRepository
	entryRepo        repository.EntryRepository
	beginTx          db.BeginTxFunc
	commitTx         db.CommitTxFunc
	rollbackTx       db.RollbackTxFunc
	cache            *cache.Cache // optional; nil disables caching
	broadcastWorkers int
}

// NewLedgerService creates a new instance of LedgerService.
func NewLedgerService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	entryRepo repository.EntryRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	c *cache.Cache,
	broadcastWorkers int,
) LedgerService {
	if broadcastWorkers <= 0 {
		broadcastWorkers = 8
	}
	return &ledgerService{
		dbBeginner:       dbBeginner,
		dbExecutor:       dbExecutor,
		accountRepo:      accountRepo,
		entryRepo:        entryRepo,
		beginTx:          beginTx,
		commitTx:         commitTx,
		rollbackTx:       rollbackTx,
		cache:            c,
		broadcastWorkers: broadcastWorkers,
	}
}

// CreateAccount provisions a new account and applies the welcome bonus as an
// ordinary Earn entry, so the balance reconciles against the history from
// the account's first moment.
func (s *ledgerService) CreateAccount(ctx context.Context, userID string) (*domain.Account, *domain.Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, util.ErrInvalidInput
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, nil, fmt.Errorf("create account: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, nil, fmt.Errorf("create account: transaction controller does not implement DBExecutor")
	}

	account, entry, err := s.provisionAccount(ctx, txExecutor, userID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.commitTx(txController); err != nil {
		return nil, nil, fmt.Errorf("create account: failed to commit transaction: %w", err)
	}

	s.invalidateBalance(ctx, userID)
	return account, entry, nil
}

// provisionAccount creates the account row and its welcome bonus entry
// inside the caller's transaction.
func (s *ledgerService) provisionAccount(ctx context.Context, q repository.DBExecutor, userID string) (*domain.Account, *domain.Entry, error) {
	account := domain.NewAccount(userID)
	if err := s.accountRepo.CreateAccount(ctx, q, account); err != nil {
		return nil, nil, fmt.Errorf("provision account %q: %w", userID, err)
	}

	entry := domain.NewEntry(userID, domain.WelcomeBonus, domain.DirectionEarn, WelcomeBonusReason, "")
	if err := s.entryRepo.AppendEntry(ctx, q, entry); err != nil {
		return nil, nil, fmt.Errorf("provision account %q: failed to append welcome entry: %w", userID, err)
	}
	if err := s.accountRepo.AddToBalance(ctx, q, userID, domain.WelcomeBonus); err != nil {
		return nil, nil, fmt.Errorf("provision account %q: failed to apply welcome bonus: %w", userID, err)
	}
	account.Balance = domain.WelcomeBonus
	return account, entry, nil
}

// Earn credits amount Mapos to the account and appends the matching entry as
// one atomic unit. An unknown account is provisioned on the fly, mirroring
// signup, so a reward is never dropped because provisioning raced it.
func (s *ledgerService) Earn(ctx context.Context, userID string, amount int64, reason, idemKey string) (int64, *domain.Entry, error) {
	if err := validateMutation(amount, reason); err != nil {
		return 0, nil, err
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return 0, nil, fmt.Errorf("earn: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return 0, nil, fmt.Errorf("earn: transaction controller does not implement DBExecutor")
	}

	if replayed, balance, entry, err := s.replayIdempotent(ctx, txExecutor, idemKey); err != nil {
		return 0, nil, fmt.Errorf("earn: %w", err)
	} else if replayed {
		return balance, entry, nil
	}

	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, userID)
	if util.IsError(err, util.ErrAccountNotFound) {
		account, _, err = s.provisionAccount(ctx, txExecutor, userID)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("earn: failed to get account %q: %w", userID, err)
	}

	entry := domain.NewEntry(userID, amount, domain.DirectionEarn, reason, idemKey)
	if err := s.entryRepo.AppendEntry(ctx, txExecutor, entry); err != nil {
		return 0, nil, fmt.Errorf("earn: failed to append entry: %w", err)
	}
	if err := s.accountRepo.AddToBalance(ctx, txExecutor, userID, amount); err != nil {
		return 0, nil, fmt.Errorf("earn: failed to update balance: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return 0, nil, fmt.Errorf("earn: failed to commit transaction: %w", err)
	}

	s.invalidateBalance(ctx, userID)
	// account.Balance was read under the row lock, so the sum is exact.
	return account.Balance + amount, entry, nil
}

// Spend debits amount Mapos from the account. The sufficiency check and the
// debit are evaluated against the same locked row, so two concurrent spends
// cannot both pass the check: the second waits on the lock and re-reads the
// already-reduced balance.
func (s *ledgerService) Spend(ctx context.Context, userID string, amount int64, reason, idemKey string) (int64, *domain.Entry, error) {
	if err := validateMutation(amount, reason); err != nil {
		return 0, nil, err
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return 0, nil, fmt.Errorf("spend: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return 0, nil, fmt.Errorf("spend: transaction controller does not implement DBExecutor")
	}

	if replayed, balance, entry, err := s.replayIdempotent(ctx, txExecutor, idemKey); err != nil {
		return 0, nil, fmt.Errorf("spend: %w", err)
	} else if replayed {
		return balance, entry, nil
	}

	account, err := s.accountRepo.GetAccountForUpdate(ctx, txExecutor, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("spend: failed to get account %q: %w", userID, err)
	}

	if account.Balance < amount {
		return 0, nil, util.ErrInsufficientFunds
	}

	entry := domain.NewEntry(userID, amount, domain.DirectionSpend, reason, idemKey)
	if err := s.entryRepo.AppendEntry(ctx, txExecutor, entry); err != nil {
		return 0, nil, fmt.Errorf("spend: failed to append entry: %w", err)
	}
	if err := s.accountRepo.AddToBalance(ctx, txExecutor, userID, -amount); err != nil {
		return 0, nil, fmt.Errorf("spend: failed to update balance: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return 0, nil, fmt.Errorf("spend: failed to commit transaction: %w", err)
	}

	s.invalidateBalance(ctx, userID)
	return account.Balance - amount, entry, nil
}

// replayIdempotent looks up a previously recorded entry under idemKey. When
// one exists the original operation already applied, so the caller gets the
// stored entry and the account's current balance with no further mutation.
func (s *ledgerService) replayIdempotent(ctx context.Context, q repository.DBExecutor, idemKey string) (bool, int64, *domain.Entry, error) {
	if idemKey == "" {
		return false, 0, nil, nil
	}
	entry, err := s.entryRepo.GetEntryByIdempotencyKey(ctx, q, idemKey)
	if util.IsError(err, util.ErrNotFound) {
		return false, 0, nil, nil
	}
	if err != nil {
		return false, 0, nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	account, err := s.accountRepo.GetAccountByUserID(ctx, q, entry.UserID)
	if err != nil {
		return false, 0, nil, fmt.Errorf("failed to get account for recorded entry: %w", err)
	}
	return true, account.Balance, entry, nil
}

// GetBalance returns the account's current balance. Reads come from the
// cache when warm; misses fall through to the database and prime it.
func (s *ledgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	key := cache.BalanceKey(userID)
	var balance int64
	if found, err := s.cache.Get(ctx, key, &balance); err == nil && found {
		return balance, nil
	}

	account, err := s.accountRepo.GetAccountByUserID(ctx, s.dbExecutor, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: failed to get account %q: %w", userID, err)
	}

	_ = s.cache.Set(ctx, key, account.Balance, cache.DefaultTTL)
	return account.Balance, nil
}

// GetHistory returns a page of the account's entries, most-recent-first,
// plus the total count. History pages are never cached: a page is a window
// over an append-only log and must reflect every committed write.
func (s *ledgerService) GetHistory(ctx context.Context, userID string, limit, offset int) ([]domain.Entry, int64, error) {
	if _, err := s.accountRepo.GetAccountByUserID(ctx, s.dbExecutor, userID); err != nil {
		return nil, 0, fmt.Errorf("get history: failed to get account %q: %w", userID, err)
	}

	entries, totalCount, err := s.entryRepo.GetEntriesByUserID(ctx, s.dbExecutor, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("get history: %w", err)
	}
	return entries, totalCount, nil
}

// BroadcastEarn credits every account with the same reward. Each credit is
// its own independent transaction, applied by a bounded pool of workers; a
// failure for one account never blocks the rest, and the caller gets the
// full per-account outcome.
func (s *ledgerService) BroadcastEarn(ctx context.Context, amount int64, reason string) (*BroadcastResult, error) {
	if err := validateMutation(amount, reason); err != nil {
		return nil, err
	}

	userIDs, err := s.accountRepo.ListUserIDs(ctx, s.dbExecutor)
	if err != nil {
		return nil, fmt.Errorf("broadcast earn: failed to list accounts: %w", err)
	}

	result := &BroadcastResult{Total: len(userIDs), Failures: []BroadcastFailure{}}
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, s.broadcastWorkers)
	)
	for _, userID := range userIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer wg.Done()
			defer func() { <-sem }()
			_, _, earnErr := s.Earn(ctx, userID, amount, reason, "")
			mu.Lock()
			defer mu.Unlock()
			if earnErr != nil {
				result.Failures = append(result.Failures, BroadcastFailure{UserID: userID, Error: earnErr.Error()})
				return
			}
			result.Succeeded++
		}(userID)
	}
	wg.Wait()

	return result, nil
}

// Leaderboard returns the top accounts by balance. The result is cached for
// the default TTL; a marginally stale leaderboard is acceptable where a
// stale balance is not.
func (s *ledgerService) Leaderboard(ctx context.Context, limit int) ([]domain.Account, error) {
	key := cache.LeaderboardKey(limit)
	var accounts []domain.Account
	if found, err := s.cache.Get(ctx, key, &accounts); err == nil && found {
		return accounts, nil
	}

	accounts, err := s.accountRepo.ListTopAccounts(ctx, s.dbExecutor, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	_ = s.cache.Set(ctx, key, accounts, cache.DefaultTTL)
	return accounts, nil
}

// Stats returns aggregate account totals for the admin dashboard.
func (s *ledgerService) Stats(ctx context.Context) (*domain.Stats, error) {
	stats, err := s.accountRepo.GetStats(ctx, s.dbExecutor)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func validateMutation(amount int64, reason string) error {
	if amount <= 0 {
		return util.ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return util.ErrInvalidReason
	}
	return nil
}

func (s *ledgerService) invalidateBalance(ctx context.Context, userID string) {
	_ = s.cache.Delete(ctx, cache.BalanceKey(userID))
}
