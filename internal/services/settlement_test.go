package services

import (
	"testing"

	"duel-arena/internal/models"

	"github.com/shopspring/decimal"
)

func TestCalculateSettlement(t *testing.T) {
	tests := []struct {
		name       string
		betAmount  int64
		feePercent int64
		wantPot    int64
		wantFee    int64
		wantPayout int64
	}{
		{"one sol at 5 percent", 1_000_000_000, 5, 2_000_000_000, 100_000_000, 1_900_000_000},
		{"odd pot truncates fee", 33, 5, 66, 3, 63},
		{"zero fee", 500, 0, 1000, 0, 1000},
		{"ten percent", 250, 10, 500, 50, 450},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CalculateSettlement(tt.betAmount, tt.feePercent)
			if s.TotalPot != tt.wantPot {
				t.Errorf("TotalPot = %d, want %d", s.TotalPot, tt.wantPot)
			}
			if s.Fee != tt.wantFee {
				t.Errorf("Fee = %d, want %d", s.Fee, tt.wantFee)
			}
			if s.Payout != tt.wantPayout {
				t.Errorf("Payout = %d, want %d", s.Payout, tt.wantPayout)
			}
			if s.Fee+s.Payout != s.TotalPot {
				t.Errorf("fee %d + payout %d != pot %d", s.Fee, s.Payout, s.TotalPot)
			}
		})
	}
}

func TestDetermineWinner(t *testing.T) {
	d := func(s string) decimal.Decimal {
		v, err := decimal.NewFromString(s)
		if err != nil {
			t.Fatalf("bad decimal %q: %v", s, err)
		}
		return v
	}

	tests := []struct {
		name            string
		direction       int16
		entry, exit     string
		wantPlayer1Wins bool
	}{
		{"up call, price rises", models.DirectionUp, "195.50", "196.00", true},
		{"up call, price falls", models.DirectionUp, "195.50", "195.00", false},
		{"down call, price falls", models.DirectionDown, "195.50", "195.00", true},
		{"down call, price rises", models.DirectionDown, "195.50", "196.00", false},
		{"up call, price unchanged wins", models.DirectionUp, "195.50", "195.50", true},
		{"down call, price unchanged loses", models.DirectionDown, "195.50", "195.50", false},
		{"tiny move still counts", models.DirectionUp, "195.50000000", "195.50000001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineWinner(tt.direction, d(tt.entry), d(tt.exit))
			if got != tt.wantPlayer1Wins {
				t.Errorf("DetermineWinner(%d, %s, %s) = %v, want %v",
					tt.direction, tt.entry, tt.exit, got, tt.wantPlayer1Wins)
			}
		})
	}
}

func TestPriceToMicroUnits(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"195.50", 195_500_000},
		{"0.000001", 1},
		{"0.0000009", 0},
		{"1234567.891234", 1_234_567_891_234},
	}
	for _, tt := range tests {
		v, _ := decimal.NewFromString(tt.in)
		if got := priceToMicroUnits(v); got != tt.want {
			t.Errorf("priceToMicroUnits(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
