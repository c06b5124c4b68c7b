package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"duel-arena/internal/blockchain"
	"duel-arena/internal/models"
	"duel-arena/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxVerifier checks deposit and payout transactions against the chain.
type TxVerifier interface {
	VerifyTransaction(ctx context.Context, txHash string, minConfirmations int) (*blockchain.TransactionDetails, error)
}

// DuelProgram drives the on-chain duel escrow program. Wallet parameters are
// base58 addresses; each call returns the transaction signature.
type DuelProgram interface {
	StartDuel(ctx context.Context, duelID uint64, entryPrice uint64) (string, error)
	ResolveDuel(ctx context.Context, duelID uint64, exitPrice uint64, player1Wallet, player2Wallet string) (string, error)
	CancelDuel(ctx context.Context, duelID uint64, refundWallet string) (string, error)
}

// PriceOracle resolves spot prices for duel symbols.
type PriceOracle interface {
	GetPrice(ctx context.Context, pair string) (decimal.Decimal, error)
}

// DuelServiceConfig carries the tunables of the duel engine.
type DuelServiceConfig struct {
	FeePercent       int64         // winner fee, percent of the total pot
	MinConfirmations int           // deposit confirmations required below finalized
	DuelDuration     time.Duration // ACTIVE phase length
	CountdownDelay   time.Duration // COUNTDOWN phase length
	PendingTTL       time.Duration // how long an unmatched duel stays joinable
	QueueSize        int           // matching queue capacity
	WorkerCount      int           // matching workers
	DefaultSymbol    string        // price pair when the request leaves it empty
}

func (c *DuelServiceConfig) applyDefaults() {
	if c.FeePercent <= 0 {
		c.FeePercent = 5
	}
	if c.MinConfirmations <= 0 {
		c.MinConfirmations = 1
	}
	if c.DuelDuration <= 0 {
		c.DuelDuration = 60 * time.Second
	}
	if c.CountdownDelay <= 0 {
		c.CountdownDelay = 5 * time.Second
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 5 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.DefaultSymbol == "" {
		c.DefaultSymbol = "SOL/USD"
	}
}

// DuelService implements duel creation, matching, lifecycle transitions and
// settlement. All status changes go through conditional updates scoped to the
// expected current status, so concurrent joins, cancels and resolver passes
// cannot double-apply.
type DuelService struct {
	repo     *repository.Repository
	verifier TxVerifier
	chain    DuelProgram
	oracle   PriceOracle
	cfg      DuelServiceConfig

	matchQueue chan models.DuelQueueItem
	stopQueue  context.CancelFunc
	queueDone  chan struct{}
}

func NewDuelService(
	repo *repository.Repository,
	verifier TxVerifier,
	chain DuelProgram,
	oracle PriceOracle,
	cfg DuelServiceConfig,
) *DuelService {
	cfg.applyDefaults()
	return &DuelService{
		repo:       repo,
		verifier:   verifier,
		chain:      chain,
		oracle:     oracle,
		cfg:        cfg,
		matchQueue: make(chan models.DuelQueueItem, cfg.QueueSize),
	}
}

// Config returns the engine tunables currently in effect.
func (s *DuelService) Config() DuelServiceConfig {
	return s.cfg
}

// CreateDuel verifies the creator's escrow deposit and opens a PENDING duel.
// Nothing is persisted until the deposit is confirmed on-chain; a failed
// transaction record insert compensates by deleting the duel row again.
func (s *DuelService) CreateDuel(ctx context.Context, userID uint, req *models.CreateDuelRequest) (*models.Duel, error) {
	if req.BetAmount <= 0 {
		return nil, fmt.Errorf("%w: bet amount must be positive", ErrValidation)
	}
	if req.Direction == nil || (*req.Direction != models.DirectionUp && *req.Direction != models.DirectionDown) {
		return nil, fmt.Errorf("%w: direction must be 0 (up) or 1 (down)", ErrValidation)
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = s.cfg.DefaultSymbol
	}

	wallet, err := s.requireWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.verifyDeposit(ctx, req.Signature, wallet, req.BetAmount); err != nil {
		return nil, err
	}

	duelID := time.Now().UnixNano()
	if req.DuelID != nil {
		duelID = *req.DuelID
		existing, err := s.repo.GetDuelByDuelID(ctx, duelID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check duel id %d: %w", duelID, err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: duel id %d is already taken", ErrValidation, duelID)
		}
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.PendingTTL)
	duel := &models.Duel{
		ID:            uuid.New(),
		DuelID:        duelID,
		Player1ID:     userID,
		BetAmount:     req.BetAmount,
		Currency:      req.Currency,
		Symbol:        symbol,
		Player1Amount: req.BetAmount,
		Direction:     *req.Direction,
		Status:        models.DuelStatusPending,
		DepositTxHash: &req.Signature,
		CreatedAt:     now,
		ExpiresAt:     &expiresAt,
	}

	if err := s.repo.CreateDuel(ctx, duel); err != nil {
		return nil, fmt.Errorf("failed to create duel: %w", err)
	}

	if err := s.recordDeposit(ctx, duel.ID, userID, req.BetAmount, req.Signature); err != nil {
		if delErr := s.repo.DeleteDuel(ctx, duel.ID); delErr != nil {
			log.Printf("[DuelService] failed to delete duel %s after deposit record failure: %v", duel.ID, delErr)
		}
		return nil, err
	}

	log.Printf("[DuelService] Duel %s created by user %d: %d lamports on %s, direction %d",
		duel.ID, userID, req.BetAmount, symbol, duel.Direction)

	s.enqueueMatch(models.DuelQueueItem{
		DuelUUID:  duel.ID,
		PlayerID:  userID,
		BetAmount: req.BetAmount,
		Symbol:    symbol,
	})

	return duel, nil
}

// JoinDuel fills the player 2 slot of a specific PENDING duel. The slot claim
// is a conditional update, so a concurrent join or matching worker loses
// cleanly; every later failure rolls the duel back to PENDING.
func (s *DuelService) JoinDuel(ctx context.Context, duelUUID uuid.UUID, userID uint, req *models.JoinDuelRequest) (*models.Duel, error) {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: duel %s", ErrNotFound, duelUUID)
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}
	if duel.Player1ID == userID {
		return nil, fmt.Errorf("%w: cannot join your own duel", ErrValidation)
	}
	if duel.Status != models.DuelStatusPending {
		return nil, fmt.Errorf("%w: duel is %s, not joinable", ErrStateConflict, duel.Status)
	}

	wallet, err := s.requireWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.verifyDeposit(ctx, req.Signature, wallet, duel.BetAmount); err != nil {
		return nil, err
	}

	claimed, err := s.repo.ClaimPlayer2Slot(ctx, duelUUID, userID, duel.BetAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to claim duel slot: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: duel was matched or closed by another player", ErrStateConflict)
	}

	if err := s.recordDeposit(ctx, duelUUID, userID, duel.BetAmount, req.Signature); err != nil {
		if rbErr := s.repo.RollbackToPending(ctx, duelUUID); rbErr != nil {
			log.Printf("[DuelService] rollback of duel %s failed: %v", duelUUID, rbErr)
		}
		return nil, err
	}

	if err := s.startMatchedDuel(ctx, duelUUID, req.Signature); err != nil {
		return nil, err
	}

	log.Printf("[DuelService] User %d joined duel %s", userID, duelUUID)
	return s.repo.GetDuelByID(ctx, duelUUID)
}

// startMatchedDuel runs the shared start path for a MATCHED duel: fix the
// entry price, start the duel on-chain, move to COUNTDOWN. Any failure
// compensates by reverting the duel to PENDING so it becomes joinable
// again; depositSig, when set, is the player 2 deposit record to release
// with the slot.
func (s *DuelService) startMatchedDuel(ctx context.Context, duelUUID uuid.UUID, depositSig string) error {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		return fmt.Errorf("failed to load matched duel: %w", err)
	}

	entryPrice, err := s.oracle.GetPrice(ctx, duel.Symbol)
	if err != nil {
		s.rollbackStart(ctx, duelUUID, depositSig)
		return fmt.Errorf("entry price for %s: %w", duel.Symbol, err)
	}

	escrowSig, err := s.chain.StartDuel(ctx, uint64(duel.DuelID), priceToMicroUnits(entryPrice))
	if err != nil {
		s.rollbackStart(ctx, duelUUID, depositSig)
		return fmt.Errorf("%w: start_duel for duel %d: %v", ErrChainCall, duel.DuelID, err)
	}

	now := time.Now()
	moved, err := s.repo.TransitionDuel(ctx, duelUUID, models.DuelStatusMatched, map[string]interface{}{
		"status":         models.DuelStatusCountdown,
		"price_at_start": entryPrice,
		"escrow_tx_hash": escrowSig,
		"started_at":     &now,
		"updated_at":     now,
	})
	if err != nil {
		return fmt.Errorf("failed to start countdown: %w", err)
	}
	if !moved {
		return fmt.Errorf("%w: duel left MATCHED concurrently", ErrStateConflict)
	}

	log.Printf("[DuelService] Duel %s countdown started: entry price %s (%s)", duelUUID, entryPrice, duel.Symbol)
	return nil
}

// rollbackStart reverts a failed start: the player 2 slot is cleared, the
// duel goes back to PENDING, and the joiner's deposit record is released so
// a retry with the same reference is not rejected as a replay.
func (s *DuelService) rollbackStart(ctx context.Context, duelUUID uuid.UUID, depositSig string) {
	if rbErr := s.repo.RollbackToPending(ctx, duelUUID); rbErr != nil {
		log.Printf("[DuelService] rollback of duel %s failed: %v", duelUUID, rbErr)
	}
	if depositSig != "" {
		if delErr := s.repo.DeleteTransactionByHash(ctx, depositSig); delErr != nil {
			log.Printf("[DuelService] failed to release deposit %s: %v", depositSig, delErr)
		}
	}
}

// requireWallet loads the user's payout address, failing when none is linked.
func (s *DuelService) requireWallet(ctx context.Context, userID uint) (string, error) {
	wallet, err := s.repo.GetUserWalletAddress(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return "", fmt.Errorf("failed to load user wallet: %w", err)
	}
	if wallet == "" {
		return "", fmt.Errorf("%w: user %d has no linked wallet", ErrMissingWallet, userID)
	}
	if !blockchain.ValidateWalletAddress(wallet) {
		return "", fmt.Errorf("%w: user %d wallet is not a valid address", ErrMissingWallet, userID)
	}
	return wallet, nil
}

// verifyDeposit checks a deposit signature against the chain: it must not
// have been consumed before, must be confirmed, sent from the depositor's
// wallet and carry at least the stake.
func (s *DuelService) verifyDeposit(ctx context.Context, signature, wallet string, betAmount int64) error {
	if existing, err := s.repo.GetTransactionByHash(ctx, signature); err == nil && existing != nil {
		return fmt.Errorf("%w: transaction %s already used", ErrDeposit, signature)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check transaction reuse: %w", err)
	}

	details, err := s.verifier.VerifyTransaction(ctx, signature, s.cfg.MinConfirmations)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeposit, err)
	}
	if details == nil || !details.Confirmed {
		return fmt.Errorf("%w: transaction %s is not confirmed", ErrDeposit, signature)
	}
	if !strings.EqualFold(details.Sender, wallet) {
		return fmt.Errorf("%w: transaction %s was not sent from the depositor wallet", ErrDeposit, signature)
	}
	if details.Amount < uint64(betAmount) {
		return fmt.Errorf("%w: transaction %s carries %d lamports, need %d",
			ErrDeposit, signature, details.Amount, betAmount)
	}
	return nil
}

// recordDeposit inserts the confirmed deposit record. A unique index clash on
// tx_hash means the signature was raced in by another request.
func (s *DuelService) recordDeposit(ctx context.Context, duelUUID uuid.UUID, userID uint, amount int64, signature string) error {
	now := time.Now()
	tx := &models.DuelTransaction{
		ID:              uuid.New(),
		DuelID:          duelUUID,
		TransactionType: models.DuelTransactionTypeDeposit,
		PlayerID:        userID,
		Amount:          amount,
		TxHash:          signature,
		Status:          models.DuelTransactionStatusConfirmed,
		CreatedAt:       now,
		ConfirmedAt:     &now,
	}
	if err := s.repo.CreateDuelTransaction(ctx, tx); err != nil {
		return fmt.Errorf("%w: failed to record deposit %s: %v", ErrDeposit, signature, err)
	}
	return nil
}

// GetDuelByID returns a single duel.
func (s *DuelService) GetDuelByID(ctx context.Context, duelUUID uuid.UUID) (*models.Duel, error) {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: duel %s", ErrNotFound, duelUUID)
		}
		return nil, err
	}
	return duel, nil
}

// GetAvailableDuels returns PENDING, unexpired duels with the total count.
func (s *DuelService) GetAvailableDuels(ctx context.Context, limit, offset int) ([]*models.Duel, int64, error) {
	return s.repo.GetAvailableDuels(ctx, limit, offset)
}

// GetUserDuels returns duels where the user played either side.
func (s *DuelService) GetUserDuels(ctx context.Context, userID uint, limit, offset int) ([]*models.Duel, int64, error) {
	return s.repo.GetUserDuels(ctx, userID, limit, offset)
}

// GetRunningDuels returns duels in COUNTDOWN or ACTIVE.
func (s *DuelService) GetRunningDuels(ctx context.Context, limit int) ([]*models.Duel, error) {
	return s.repo.GetRunningDuels(ctx, limit)
}

// GetPlayerStatistics returns a player's aggregate record, zero-valued for
// players with no finished duels yet.
func (s *DuelService) GetPlayerStatistics(ctx context.Context, userID uint) (*models.DuelStatistics, error) {
	return s.repo.GetDuelStatistics(ctx, userID)
}

// GetDuelResult returns the stored outcome of a resolved duel.
func (s *DuelService) GetDuelResult(ctx context.Context, duelUUID uuid.UUID) (*models.DuelResult, error) {
	result, err := s.repo.GetDuelResult(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no result for duel %s", ErrNotFound, duelUUID)
		}
		return nil, err
	}
	return result, nil
}

// ExpirePendingDuels sweeps PENDING duels past their deadline into EXPIRED.
func (s *DuelService) ExpirePendingDuels(ctx context.Context) (int64, error) {
	swept, err := s.repo.ExpirePendingDuels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending duels: %w", err)
	}
	if swept > 0 {
		log.Printf("[DuelService] Expired %d pending duels", swept)
	}
	return swept, nil
}
