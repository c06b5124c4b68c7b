package repository

import (
	"context"
	"time"

	"duel-arena/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateDuel creates a new duel
func (r *Repository) CreateDuel(ctx context.Context, duel *models.Duel) error {
	return r.db.WithContext(ctx).Create(duel).Error
}

// DeleteDuel removes a duel row. Only used to compensate a failed create
// (deposit reference lost the uniqueness race after the row was written).
func (r *Repository) DeleteDuel(ctx context.Context, duelID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", duelID).Delete(&models.Duel{}).Error
}

// GetDuelByID retrieves a duel by ID
func (r *Repository) GetDuelByID(ctx context.Context, duelID uuid.UUID) (*models.Duel, error) {
	var duel models.Duel
	err := r.db.WithContext(ctx).Where("id = ?", duelID).First(&duel).Error
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

// GetDuelByDuelID retrieves a duel by its on-chain numeric ID
func (r *Repository) GetDuelByDuelID(ctx context.Context, duelID int64) (*models.Duel, error) {
	var duel models.Duel
	err := r.db.WithContext(ctx).Where("duel_id = ?", duelID).First(&duel).Error
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

// TransitionDuel applies updates to a duel only if it still has the expected
// status. Returns false when zero rows were affected, i.e. a concurrent
// writer moved the duel first; the caller decides whether that is a conflict
// or a benign race loss.
func (r *Repository) TransitionDuel(
	ctx context.Context,
	duelID uuid.UUID,
	expected models.DuelStatus,
	updates map[string]interface{},
) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Duel{}).
		Where("id = ? AND status = ?", duelID, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimPlayer2Slot atomically fills the player 2 slot of a PENDING duel and
// moves it to MATCHED. The status/player2 scope makes concurrent join and
// matching attempts mutually exclusive: exactly one writer sees a non-zero
// row count.
func (r *Repository) ClaimPlayer2Slot(
	ctx context.Context,
	duelID uuid.UUID,
	player2ID uint,
	amount int64,
) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.Duel{}).
		Where("id = ? AND status = ? AND player2_id IS NULL AND player1_id != ?",
			duelID, models.DuelStatusPending, player2ID).
		Updates(map[string]interface{}{
			"player2_id":     player2ID,
			"player2_amount": amount,
			"status":         models.DuelStatusMatched,
			"started_at":     &now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RollbackToPending clears the player 2 slot and reverts a duel to PENDING.
// Compensation for a failed on-chain start after the slot was claimed.
func (r *Repository) RollbackToPending(ctx context.Context, duelID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Duel{}).
		Where("id = ?", duelID).
		Updates(map[string]interface{}{
			"player2_id":     nil,
			"player2_amount": nil,
			"status":         models.DuelStatusPending,
			"started_at":     nil,
			"updated_at":     time.Now(),
		}).Error
}

// FindMatchingDuel finds the oldest PENDING duel with the same bet amount
// (and symbol) created by someone else. Oldest first: FIFO fairness for
// waiting creators. Only rows strictly older than the requester's own duel
// are candidates (ties broken by id), so two requests that match each other
// converge on the earlier duel instead of claiming each other.
func (r *Repository) FindMatchingDuel(
	ctx context.Context,
	playerID uint,
	betAmount int64,
	symbol string,
	selfID uuid.UUID,
	selfCreatedAt time.Time,
) (*models.Duel, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND bet_amount = ? AND player1_id != ? AND player2_id IS NULL",
			models.DuelStatusPending, betAmount, playerID).
		Where("(created_at < ? OR (created_at = ? AND id < ?))",
			selfCreatedAt, selfCreatedAt, selfID)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var duel models.Duel
	err := q.Order("created_at ASC, id ASC").First(&duel).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

// CreateDuelTransaction creates a new duel transaction. The unique index on
// tx_hash makes this the replay gate: a second insert with the same
// reference fails regardless of target duel.
func (r *Repository) CreateDuelTransaction(ctx context.Context, tx *models.DuelTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// DeleteTransactionByHash releases a transaction reference. Compensation
// only: a failed duel start must give the joiner's deposit back to the
// replay gate.
func (r *Repository) DeleteTransactionByHash(ctx context.Context, txHash string) error {
	return r.db.WithContext(ctx).Where("tx_hash = ?", txHash).Delete(&models.DuelTransaction{}).Error
}

// GetTransactionByHash retrieves a duel transaction by its reference.
func (r *Repository) GetTransactionByHash(ctx context.Context, txHash string) (*models.DuelTransaction, error) {
	var tx models.DuelTransaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetDuelTransactions retrieves all transactions for a duel
func (r *Repository) GetDuelTransactions(ctx context.Context, duelID uuid.UUID) ([]*models.DuelTransaction, error) {
	var transactions []*models.DuelTransaction
	err := r.db.WithContext(ctx).
		Where("duel_id = ?", duelID).
		Order("created_at DESC").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// GetDuelStatistics retrieves duel statistics for a user
func (r *Repository) GetDuelStatistics(ctx context.Context, userID uint) (*models.DuelStatistics, error) {
	var stats models.DuelStatistics
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error

	if err == gorm.ErrRecordNotFound {
		stats = models.DuelStatistics{
			ID:     uuid.New(),
			UserID: userID,
		}
		if err := r.db.WithContext(ctx).Create(&stats).Error; err != nil {
			return nil, err
		}
		return &stats, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// IncrementDuelStats updates duel statistics for a user
func (r *Repository) IncrementDuelStats(
	ctx context.Context,
	userID uint,
	duelsIncr int64,
	winsIncr int64,
	lossesIncr int64,
	wageredIncr int64,
	wonIncr int64,
	lostIncr int64,
) error {
	// Prepare the upsert struct with initial values (for the INSERT case)
	initialStats := models.DuelStatistics{
		ID:           uuid.New(),
		UserID:       userID,
		TotalDuels:   duelsIncr,
		Wins:         winsIncr,
		Losses:       lossesIncr,
		TotalWagered: wageredIncr,
		TotalWon:     wonIncr,
		TotalLost:    lostIncr,
	}

	// Calculate initial derived stats
	if initialStats.TotalDuels > 0 {
		initialStats.WinRate = float64(initialStats.Wins) / float64(initialStats.TotalDuels) * 100
		initialStats.AvgBet = initialStats.TotalWagered / initialStats.TotalDuels
	}

	// Perform Upsert with atomic update for counters
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_duels":   gorm.Expr("duel_statistics.total_duels + ?", duelsIncr),
			"wins":          gorm.Expr("duel_statistics.wins + ?", winsIncr),
			"losses":        gorm.Expr("duel_statistics.losses + ?", lossesIncr),
			"total_wagered": gorm.Expr("duel_statistics.total_wagered + ?", wageredIncr),
			"total_won":     gorm.Expr("duel_statistics.total_won + ?", wonIncr),
			"total_lost":    gorm.Expr("duel_statistics.total_lost + ?", lostIncr),
			// Derived fields must repeat the increment: the column reference
			// in ON CONFLICT DO UPDATE is the OLD value in Postgres.
			"win_rate":   gorm.Expr("CASE WHEN (duel_statistics.total_duels + ?) > 0 THEN (CAST((duel_statistics.wins + ?) AS NUMERIC) / (duel_statistics.total_duels + ?) * 100) ELSE 0 END", duelsIncr, winsIncr, duelsIncr),
			"avg_bet":    gorm.Expr("CASE WHEN (duel_statistics.total_duels + ?) > 0 THEN ((duel_statistics.total_wagered + ?) / (duel_statistics.total_duels + ?)) ELSE 0 END", duelsIncr, wageredIncr, duelsIncr),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&initialStats).Error
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserWalletAddress retrieves a user's payout address
func (r *Repository) GetUserWalletAddress(ctx context.Context, userID uint) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("wallet_address").Where("id = ?", userID).First(&user).Error
	if err != nil {
		return "", err
	}
	return user.WalletAddress, nil
}

// GetRunningDuels retrieves duels in COUNTDOWN or ACTIVE, oldest first.
// Used by the resolver job.
func (r *Repository) GetRunningDuels(ctx context.Context, limit int) ([]*models.Duel, error) {
	var duels []*models.Duel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.DuelStatus{
			models.DuelStatusCountdown,
			models.DuelStatusActive,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&duels).Error
	if err != nil {
		return nil, err
	}
	return duels, nil
}

// ExpirePendingDuels marks PENDING duels past their expiry as EXPIRED. The
// status scope keeps the sweep away from matched or settling duels. Returns
// the number of rows swept.
func (r *Repository) ExpirePendingDuels(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Duel{}).
		Where("status = ? AND expires_at < ?", models.DuelStatusPending, time.Now()).
		Update("status", models.DuelStatusExpired)
	return res.RowsAffected, res.Error
}

// GetAvailableDuels retrieves pending duels that haven't expired
func (r *Repository) GetAvailableDuels(ctx context.Context, limit, offset int) ([]*models.Duel, int64, error) {
	now := time.Now()

	var total int64
	err := r.db.WithContext(ctx).Model(&models.Duel{}).
		Where("status = ? AND (expires_at IS NULL OR expires_at > ?)", models.DuelStatusPending, now).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var duels []*models.Duel
	err = r.db.WithContext(ctx).
		Where("status = ? AND (expires_at IS NULL OR expires_at > ?)", models.DuelStatusPending, now).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&duels).Error
	if err != nil {
		return nil, 0, err
	}

	return duels, total, nil
}

// GetUserDuels retrieves all duels for a user with total count
func (r *Repository) GetUserDuels(ctx context.Context, userID uint, limit, offset int) ([]*models.Duel, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Duel{}).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var duels []*models.Duel
	err = r.db.WithContext(ctx).
		Where("player1_id = ? OR player2_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&duels).Error
	if err != nil {
		return nil, 0, err
	}

	return duels, total, nil
}

// CreateDuelResult creates a duel result record
func (r *Repository) CreateDuelResult(ctx context.Context, result *models.DuelResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// GetDuelResult retrieves the result for a duel
func (r *Repository) GetDuelResult(ctx context.Context, duelID uuid.UUID) (*models.DuelResult, error) {
	var result models.DuelResult
	err := r.db.WithContext(ctx).Where("duel_id = ?", duelID).First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}
