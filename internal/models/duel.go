package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DuelStatus string

const (
	DuelStatusPending   DuelStatus = "PENDING"
	DuelStatusMatched   DuelStatus = "MATCHED"
	DuelStatusCountdown DuelStatus = "COUNTDOWN"
	DuelStatusActive    DuelStatus = "ACTIVE"
	DuelStatusResolved  DuelStatus = "RESOLVED"
	DuelStatusFinished  DuelStatus = "FINISHED"
	DuelStatusCancelled DuelStatus = "CANCELLED"
	DuelStatusExpired   DuelStatus = "EXPIRED"
)

// Direction values for player 1's price call. Player 2 implicitly takes the
// opposite side.
const (
	DirectionUp   int16 = 0
	DirectionDown int16 = 1
)

type DuelTransactionType string

const (
	DuelTransactionTypeDeposit DuelTransactionType = "DEPOSIT"
	DuelTransactionTypePayout  DuelTransactionType = "PAYOUT"
	DuelTransactionTypeFee     DuelTransactionType = "FEE"
	DuelTransactionTypeRefund  DuelTransactionType = "REFUND"
)

type DuelTransactionStatus string

const (
	DuelTransactionStatusPending   DuelTransactionStatus = "PENDING"
	DuelTransactionStatusConfirmed DuelTransactionStatus = "CONFIRMED"
	DuelTransactionStatusFailed    DuelTransactionStatus = "FAILED"
)

// Duel represents a single duel between two players
type Duel struct {
	ID               uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	DuelID           int64               `gorm:"uniqueIndex;not null" json:"duel_id"`
	Player1ID        uint                `gorm:"not null;index" json:"player_1_id"`
	Player2ID        *uint               `gorm:"index" json:"player_2_id"`
	BetAmount        int64               `gorm:"not null" json:"bet_amount"` // lamports
	Currency         int16               `gorm:"not null;default:0" json:"currency"` // 0: SOL, 1: PUMP
	Symbol           string              `gorm:"size:32;not null;default:SOL/USD" json:"symbol"`
	Player1Amount    int64               `gorm:"not null" json:"player_1_amount"`
	Player2Amount    *int64              `json:"player_2_amount"`
	Direction        int16               `gorm:"not null;default:0" json:"direction"` // 0: UP, 1: DOWN
	Status           DuelStatus          `gorm:"size:50;not null;default:PENDING;index" json:"status"`
	WinnerID         *uint               `json:"winner_id"`
	PriceAtStart     decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"price_at_start"`
	PriceAtEnd       decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"price_at_end"`
	DepositTxHash    *string             `gorm:"size:255" json:"deposit_tx_hash"`
	EscrowTxHash     *string             `gorm:"size:255" json:"escrow_tx_hash"`
	ResolutionTxHash *string             `gorm:"size:255" json:"resolution_tx_hash"`
	CreatedAt        time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	StartedAt        *time.Time          `json:"started_at"`
	ResolvedAt       *time.Time          `json:"resolved_at"`
	ExpiresAt        *time.Time          `json:"expires_at"`
	UpdatedAt        time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Duel) TableName() string {
	return "duels"
}

// DuelTransaction is an immutable deposit/payout/fee record for a duel.
// TxHash carries a unique index: a transaction reference can be consumed at
// most once across the whole system, which is the replay guard for deposits
// and payouts.
type DuelTransaction struct {
	ID              uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	DuelID          uuid.UUID             `gorm:"type:uuid;not null;index" json:"duel_id"`
	TransactionType DuelTransactionType   `gorm:"size:50;not null" json:"transaction_type"`
	PlayerID        uint                  `gorm:"not null;index" json:"player_id"`
	Amount          int64                 `gorm:"not null" json:"amount"`
	TxHash          string                `gorm:"size:255;not null;uniqueIndex" json:"tx_hash"`
	Status          DuelTransactionStatus `gorm:"size:50;not null;default:PENDING;index" json:"status"`
	CreatedAt       time.Time             `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	ConfirmedAt     *time.Time            `json:"confirmed_at"`
}

func (DuelTransaction) TableName() string {
	return "duel_transactions"
}

// DuelQueueItem is an in-process matching request. It is consumed by the
// matching workers and never persisted; the PENDING duel row it points at is
// the durable state.
type DuelQueueItem struct {
	DuelUUID  uuid.UUID
	PlayerID  uint
	BetAmount int64
	Symbol    string
}

// DuelStatistics represents player duel statistics
type DuelStatistics struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalDuels   int64     `gorm:"default:0" json:"total_duels"`
	Wins         int64     `gorm:"default:0" json:"wins"`
	Losses       int64     `gorm:"default:0" json:"losses"`
	TotalWagered int64     `gorm:"default:0" json:"total_wagered"`
	TotalWon     int64     `gorm:"default:0" json:"total_won"`
	TotalLost    int64     `gorm:"default:0" json:"total_lost"`
	WinRate      float64   `gorm:"type:decimal(5,2);default:0" json:"win_rate"`
	AvgBet       int64     `gorm:"default:0" json:"avg_bet"`
	UpdatedAt    time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DuelStatistics) TableName() string {
	return "duel_statistics"
}

// DuelResult stores the outcome of a resolved duel. Written once at
// resolution time and returned unchanged by every later claim.
type DuelResult struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DuelID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"duel_id"`
	WinnerID           uint            `gorm:"not null;index" json:"winner_id"`
	LoserID            uint            `gorm:"not null;index" json:"loser_id"`
	Payout             int64           `gorm:"not null" json:"payout"` // lamports, after fee
	Fee                int64           `gorm:"not null" json:"fee"`
	Currency           int16           `gorm:"not null" json:"currency"`
	EntryPrice         decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	ExitPrice          decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"exit_price"`
	PriceChange        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price_change"`
	PriceChangePercent decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"price_change_percent"`
	Direction          int16           `gorm:"not null" json:"direction"`
	WasCorrect         bool            `gorm:"not null" json:"was_correct"`
	DurationSeconds    int64           `gorm:"not null" json:"duration_seconds"`
	CreatedAt          time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DuelResult) TableName() string {
	return "duel_results"
}

// CreateDuelRequest represents a request to create a new duel
type CreateDuelRequest struct {
	BetAmount int64  `json:"bet_amount" binding:"required,gt=0"` // lamports
	Currency  int16  `json:"currency"`                           // 0: SOL, 1: PUMP
	Symbol    string `json:"symbol"`                             // price pair, default SOL/USD
	Direction *int16 `json:"direction" binding:"required"`       // 0: UP, 1: DOWN
	DuelID    *int64 `json:"duel_id"`                            // client-generated on-chain id, optional
	Signature string `json:"signature" binding:"required"`       // deposit transaction signature
}

// JoinDuelRequest represents a request to join a pending duel
type JoinDuelRequest struct {
	Signature string `json:"signature" binding:"required"` // deposit transaction signature
}
