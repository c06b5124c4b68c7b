package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"duel-arena/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// priceToMicroUnits converts a decimal price to the u64 micro-unit encoding
// the escrow program expects (price * 1e6, truncated).
func priceToMicroUnits(price decimal.Decimal) uint64 {
	return uint64(price.Shift(6).Truncate(0).IntPart())
}

// countdownDeadline is when a duel leaves COUNTDOWN, measured from the start.
func (s *DuelService) countdownDeadline(duel *models.Duel) time.Time {
	base := duel.CreatedAt
	if duel.StartedAt != nil {
		base = *duel.StartedAt
	}
	return base.Add(s.cfg.CountdownDelay)
}

// resolveDeadline is when a running duel becomes due for resolution.
func (s *DuelService) resolveDeadline(duel *models.Duel) time.Time {
	return s.countdownDeadline(duel).Add(s.cfg.DuelDuration)
}

// DueAction reports whether a running duel needs attention at the given time
// and whether that attention is activation only. A COUNTDOWN duel already
// past its resolve deadline goes straight to resolution, which handles the
// skipped activation itself.
func (s *DuelService) DueAction(duel *models.Duel, now time.Time) (due bool, activateOnly bool) {
	switch duel.Status {
	case models.DuelStatusCountdown:
		if now.Before(s.countdownDeadline(duel)) {
			return false, false
		}
		return true, now.Before(s.resolveDeadline(duel))
	case models.DuelStatusActive:
		return !now.Before(s.resolveDeadline(duel)), false
	}
	return false, false
}

// ActivateDuel flips a COUNTDOWN duel to ACTIVE once the countdown has
// elapsed. The entry price was fixed at the start, so this is a pure status
// transition.
func (s *DuelService) ActivateDuel(ctx context.Context, duelUUID uuid.UUID) error {
	activated, err := s.repo.TransitionDuel(ctx, duelUUID, models.DuelStatusCountdown, map[string]interface{}{
		"status":     models.DuelStatusActive,
		"updated_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to activate duel: %w", err)
	}
	if !activated {
		return fmt.Errorf("%w: duel left COUNTDOWN concurrently", ErrStateConflict)
	}
	return nil
}

// AutoResolveDuel settles a running duel: it fetches the exit price,
// determines the winner, snapshots the result and moves the duel to
// RESOLVED. A duel still in COUNTDOWN is resolved from there directly; if
// its entry price was somehow never set, the exit price doubles as the
// entry, which resolves as unchanged and hands the tie to the up side. The
// payout itself is deferred to the winner's claim.
func (s *DuelService) AutoResolveDuel(ctx context.Context, duelUUID uuid.UUID) (*models.DuelResult, error) {
	duel, err := s.repo.GetDuelByID(ctx, duelUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: duel %s", ErrNotFound, duelUUID)
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}

	if duel.Status != models.DuelStatusActive && duel.Status != models.DuelStatusCountdown {
		return nil, fmt.Errorf("%w: duel is %s, expected ACTIVE or COUNTDOWN", ErrStateConflict, duel.Status)
	}
	if duel.Player2ID == nil {
		return nil, fmt.Errorf("%w: duel %s is running without a second player", ErrStateConflict, duelUUID)
	}

	exitPrice, err := s.oracle.GetPrice(ctx, duel.Symbol)
	if err != nil {
		return nil, fmt.Errorf("exit price for %s: %w", duel.Symbol, err)
	}

	entryPrice := exitPrice
	bootstrapped := true
	if duel.PriceAtStart.Valid {
		entryPrice = duel.PriceAtStart.Decimal
		bootstrapped = false
	}

	player1Wins := DetermineWinner(duel.Direction, entryPrice, exitPrice)
	winnerID := duel.Player1ID
	loserID := *duel.Player2ID
	if !player1Wins {
		winnerID, loserID = loserID, winnerID
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.DuelStatusResolved,
		"winner_id":    winnerID,
		"price_at_end": exitPrice,
		"resolved_at":  &now,
		"updated_at":   now,
	}
	if bootstrapped {
		updates["price_at_start"] = entryPrice
	}
	resolved, err := s.repo.TransitionDuel(ctx, duelUUID, duel.Status, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve duel: %w", err)
	}
	if !resolved {
		// Another resolver pass got here first; its snapshot is the outcome.
		return s.GetDuelResult(ctx, duelUUID)
	}

	settlement := CalculateSettlement(duel.BetAmount, s.cfg.FeePercent)

	priceChange := exitPrice.Sub(entryPrice)
	changePercent := decimal.Zero
	if !entryPrice.IsZero() {
		changePercent = priceChange.Div(entryPrice).Shift(2).Round(4)
	}

	duration := int64(s.cfg.DuelDuration / time.Second)
	if duel.StartedAt != nil {
		duration = int64(now.Sub(s.countdownDeadline(duel)) / time.Second)
	}

	result := &models.DuelResult{
		ID:                 uuid.New(),
		DuelID:             duelUUID,
		WinnerID:           winnerID,
		LoserID:            loserID,
		Payout:             settlement.Payout,
		Fee:                settlement.Fee,
		Currency:           duel.Currency,
		EntryPrice:         entryPrice,
		ExitPrice:          exitPrice,
		PriceChange:        priceChange,
		PriceChangePercent: changePercent,
		Direction:          duel.Direction,
		WasCorrect:         winnerID == duel.Player1ID,
		DurationSeconds:    duration,
		CreatedAt:          now,
	}
	if err := s.repo.CreateDuelResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store duel result: %w", err)
	}

	netWin := settlement.Payout - duel.BetAmount
	if err := s.repo.IncrementDuelStats(ctx, winnerID, 1, 1, 0, duel.BetAmount, netWin, 0); err != nil {
		log.Printf("[DuelService] stats update for winner %d failed: %v", winnerID, err)
	}
	if err := s.repo.IncrementDuelStats(ctx, loserID, 1, 0, 1, duel.BetAmount, 0, duel.BetAmount); err != nil {
		log.Printf("[DuelService] stats update for loser %d failed: %v", loserID, err)
	}

	log.Printf("[DuelService] Duel %s resolved: winner %d, %s -> %s, payout %d lamports (fee %d)",
		duelUUID, winnerID, entryPrice, exitPrice, settlement.Payout, settlement.Fee)
	return result, nil
}
