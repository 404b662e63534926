// internal/services/wallet_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/ppv-settlement/internal/metrics"
	"github.com/fieldbook/ppv-settlement/internal/models"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

// creditSQL creates the wallet on first credit and otherwise increments it in
// place; there is no read-modify-write at the caller.
const creditSQL = `INSERT INTO wallets (id, user_id, balance_available, balance_pending, total_earned, total_withdrawn, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, 0, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	balance_available = wallets.balance_available + excluded.balance_available,
	total_earned = wallets.total_earned + excluded.total_earned,
	updated_at = excluded.updated_at`

type WalletService struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// EarningsCheck compares a wallet's running total with the ledger.
type EarningsCheck struct {
	UserID      uuid.UUID `json:"user_id"`
	TotalEarned int64     `json:"total_earned"`
	LedgerSum   int64     `json:"ledger_sum"`
	Consistent  bool      `json:"consistent"`
}

func NewWalletService(db *gorm.DB, m *metrics.Metrics) *WalletService {
	return &WalletService{
		db:      db,
		metrics: m,
	}
}

// Credit adds amount to the user's available balance and lifetime earnings.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	return s.CreditTx(s.db.WithContext(ctx), userID, amount)
}

// CreditTx is Credit on an existing database transaction.
func (s *WalletService) CreditTx(tx *gorm.DB, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if userID == uuid.Nil {
		return fmt.Errorf("%w: missing user id", ErrLedgerWriteFailure)
	}

	now := time.Now().UTC()
	res := tx.Exec(creditSQL, uuid.New(), userID, amount, amount, now, now)
	if res.Error != nil {
		return fmt.Errorf("%w: credit %s: %w", ErrLedgerWriteFailure, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: credit %s affected no rows", ErrLedgerWriteFailure, userID)
	}

	s.metrics.WalletCredits.Inc()
	s.metrics.WalletCreditAmount.Add(float64(amount))
	return nil
}

// GetBalance returns the user's wallet, or a zero wallet if they never earned.
func (s *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "type"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var transactions []models.Transaction
	if err := query.Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	return transactions, total, nil
}

// VerifyEarnings checks total_earned against the sum of COMPLETED ledger rows.
func (s *WalletService) VerifyEarnings(ctx context.Context, userID uuid.UUID) (*EarningsCheck, error) {
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sum int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND status = ?", userID, models.TransactionStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error; err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	return &EarningsCheck{
		UserID:      userID,
		TotalEarned: wallet.TotalEarned,
		LedgerSum:   sum,
		Consistent:  wallet.TotalEarned == sum,
	}, nil
}
