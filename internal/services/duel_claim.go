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

// ClaimWinnings pays out a resolved duel to its winner: it sends the on-chain
// resolve instruction, records the payout and moves the duel to FINISHED.
// Claiming an already FINISHED duel returns the stored result without a
// second chain call, so retries after a lost response are safe.
func (s *DuelService) ClaimWinnings(ctx context.Context, duelUUID uuid.UUID, userID uint) (*models.DuelResult, error) {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: duel %s", ErrNotFound, duelUUID)
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}

	if duel.WinnerID == nil || *duel.WinnerID != userID {
		return nil, fmt.Errorf("%w: user %d is not the winner of duel %s", ErrUnauthorized, userID, duelUUID)
	}

	if duel.Status == models.DuelStatusFinished {
		return s.GetDuelResult(ctx, duelUUID)
	}
	if duel.Status != models.DuelStatusResolved {
		return nil, fmt.Errorf("%w: duel is %s, nothing to claim", ErrStateConflict, duel.Status)
	}
	if duel.Player2ID == nil || !duel.PriceAtEnd.Valid {
		return nil, fmt.Errorf("%w: duel %s is missing resolution data", ErrStateConflict, duelUUID)
	}

	result, err := s.GetDuelResult(ctx, duelUUID)
	if err != nil {
		return nil, err
	}

	player1Wallet, err := s.requireWallet(ctx, duel.Player1ID)
	if err != nil {
		return nil, err
	}
	player2Wallet, err := s.requireWallet(ctx, *duel.Player2ID)
	if err != nil {
		return nil, err
	}

	sig, err := s.chain.ResolveDuel(ctx, uint64(duel.DuelID),
		priceToMicroUnits(duel.PriceAtEnd.Decimal), player1Wallet, player2Wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve_duel for duel %d: %v", ErrPayout, duel.DuelID, err)
	}

	now := time.Now()
	payoutTx := &models.DuelTransaction{
		ID:              uuid.New(),
		DuelID:          duelUUID,
		TransactionType: models.DuelTransactionTypePayout,
		PlayerID:        userID,
		Amount:          result.Payout,
		TxHash:          sig,
		Status:          models.DuelTransactionStatusConfirmed,
		CreatedAt:       now,
		ConfirmedAt:     &now,
	}
	if err := s.repo.CreateDuelTransaction(ctx, payoutTx); err != nil {
		// The unique tx_hash index rejects a replayed payout reference. The
		// chain call above already succeeded, so surface this loudly.
		return nil, fmt.Errorf("%w: failed to record payout %s: %v", ErrPayout, sig, err)
	}

	finished, err := s.repo.TransitionDuel(ctx, duelUUID, models.DuelStatusResolved, map[string]interface{}{
		"status":             models.DuelStatusFinished,
		"resolution_tx_hash": sig,
		"updated_at":         now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finish duel: %w", err)
	}
	if !finished {
		log.Printf("[DuelService] duel %s finished concurrently during claim", duelUUID)
	}

	log.Printf("[DuelService] Duel %s claimed by user %d: payout %d lamports, tx %s",
		duelUUID, userID, result.Payout, sig)
	return result, nil
}
