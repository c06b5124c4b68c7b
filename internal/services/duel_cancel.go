package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"duel-arena/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CancelDuel lets the creator withdraw an unmatched duel. Only PENDING duels
// can be cancelled; the conditional update closes the race against a
// concurrent join. The on-chain refund runs after the row is CANCELLED and is
// retried by hand on failure, never by reopening the duel.
func (s *DuelService) CancelDuel(ctx context.Context, duelUUID uuid.UUID, userID uint) (*models.Duel, error) {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: duel %s", ErrNotFound, duelUUID)
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}

	if duel.Player1ID != userID {
		return nil, fmt.Errorf("%w: only the creator can cancel a duel", ErrUnauthorized)
	}
	if duel.Status != models.DuelStatusPending {
		return nil, fmt.Errorf("%w: duel is %s, only pending duels can be cancelled", ErrStateConflict, duel.Status)
	}

	cancelled, err := s.repo.TransitionDuel(ctx, duelUUID, models.DuelStatusPending, map[string]interface{}{
		"status":     models.DuelStatusCancelled,
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel duel: %w", err)
	}
	if !cancelled {
		return nil, fmt.Errorf("%w: duel was matched or closed concurrently", ErrStateConflict)
	}

	wallet, err := s.requireWallet(ctx, userID)
	if err == nil {
		s.refundStake(ctx, duel, userID, wallet)
	} else {
		log.Printf("[DuelService] no refund wallet for user %d on duel %s: %v", userID, duelUUID, err)
	}

	log.Printf("[DuelService] Duel %s cancelled by user %d", duelUUID, userID)
	return s.repo.GetDuelByID(ctx, duelUUID)
}

// refundStake sends the on-chain refund for a cancelled duel and records it.
// Best effort: a failure here leaves the escrow to manual recovery and never
// touches the duel status.
func (s *DuelService) refundStake(ctx context.Context, duel *models.Duel, userID uint, wallet string) {
	sig, err := s.chain.CancelDuel(ctx, uint64(duel.DuelID), wallet)
	if err != nil {
		log.Printf("[DuelService] on-chain refund for duel %d failed: %v", duel.DuelID, err)
		return
	}

	now := time.Now()
	refundTx := &models.DuelTransaction{
		ID:              uuid.New(),
		DuelID:          duel.ID,
		TransactionType: models.DuelTransactionTypeRefund,
		PlayerID:        userID,
		Amount:          duel.BetAmount,
		TxHash:          sig,
		Status:          models.DuelTransactionStatusConfirmed,
		CreatedAt:       now,
		ConfirmedAt:     &now,
	}
	if err := s.repo.CreateDuelTransaction(ctx, refundTx); err != nil {
		log.Printf("[DuelService] failed to record refund %s for duel %s: %v", sig, duel.ID, err)
	}
}
