package services

import (
	"duel-arena/internal/models"

	"github.com/shopspring/decimal"
)

// Settlement holds the lamport split of a finished duel's pot.
type Settlement struct {
	TotalPot int64
	Fee      int64
	Payout   int64
}

// CalculateSettlement splits the combined pot between the winner and the fee
// collector. The fee is truncated toward zero so the winner keeps any
// sub-lamport remainder.
func CalculateSettlement(betAmount int64, feePercent int64) Settlement {
	totalPot := betAmount * 2
	fee := totalPot * feePercent / 100
	return Settlement{
		TotalPot: totalPot,
		Fee:      fee,
		Payout:   totalPot - fee,
	}
}

// DetermineWinner applies the direction rule: player1 predicted the entry
// direction, player2 holds the opposite side. An exit price exactly equal to
// the entry price counts as the price having risen, so the UP side wins ties.
// Returns true when player1 wins.
func DetermineWinner(direction int16, entryPrice, exitPrice decimal.Decimal) bool {
	up := direction == models.DirectionUp
	rose := exitPrice.GreaterThanOrEqual(entryPrice)
	return up == rose
}
