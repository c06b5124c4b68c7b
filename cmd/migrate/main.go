package main

import (
	"database/sql"
	"log"

	"duel-arena/internal/config"

	_ "github.com/lib/pq"
)

// Raw schema migration for environments where AutoMigrate is not wanted,
// e.g. CI databases or restores. Statements are idempotent.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		wallet_address VARCHAR(255) NOT NULL UNIQUE,
		nickname VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS duels (
		id UUID PRIMARY KEY,
		duel_id BIGINT NOT NULL UNIQUE,
		player1_id INTEGER NOT NULL,
		player2_id INTEGER,
		bet_amount BIGINT NOT NULL,
		currency SMALLINT NOT NULL DEFAULT 0,
		symbol VARCHAR(32) NOT NULL DEFAULT 'SOL/USD',
		player1_amount BIGINT NOT NULL,
		player2_amount BIGINT,
		direction SMALLINT NOT NULL DEFAULT 0,
		status VARCHAR(50) NOT NULL DEFAULT 'PENDING',
		winner_id INTEGER,
		price_at_start DECIMAL(20,8),
		price_at_end DECIMAL(20,8),
		deposit_tx_hash VARCHAR(255),
		escrow_tx_hash VARCHAR(255),
		resolution_tx_hash VARCHAR(255),
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMPTZ,
		resolved_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_duels_status ON duels(status)`,
	`CREATE INDEX IF NOT EXISTS idx_duels_player1_id ON duels(player1_id)`,
	`CREATE INDEX IF NOT EXISTS idx_duels_player2_id ON duels(player2_id)`,
	`CREATE TABLE IF NOT EXISTS duel_transactions (
		id UUID PRIMARY KEY,
		duel_id UUID NOT NULL,
		transaction_type VARCHAR(50) NOT NULL,
		player_id INTEGER NOT NULL,
		amount BIGINT NOT NULL,
		tx_hash VARCHAR(255) NOT NULL UNIQUE,
		status VARCHAR(50) NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		confirmed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_duel_transactions_duel_id ON duel_transactions(duel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_duel_transactions_player_id ON duel_transactions(player_id)`,
	`CREATE TABLE IF NOT EXISTS duel_statistics (
		id UUID PRIMARY KEY,
		user_id INTEGER NOT NULL UNIQUE,
		total_duels BIGINT DEFAULT 0,
		wins BIGINT DEFAULT 0,
		losses BIGINT DEFAULT 0,
		total_wagered BIGINT DEFAULT 0,
		total_won BIGINT DEFAULT 0,
		total_lost BIGINT DEFAULT 0,
		win_rate DECIMAL(5,2) DEFAULT 0,
		avg_bet BIGINT DEFAULT 0,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS duel_results (
		id UUID PRIMARY KEY,
		duel_id UUID NOT NULL UNIQUE,
		winner_id INTEGER NOT NULL,
		loser_id INTEGER NOT NULL,
		payout BIGINT NOT NULL,
		fee BIGINT NOT NULL,
		currency SMALLINT NOT NULL,
		entry_price DECIMAL(20,8) NOT NULL,
		exit_price DECIMAL(20,8) NOT NULL,
		price_change DECIMAL(20,8) NOT NULL,
		price_change_percent DECIMAL(10,4) NOT NULL,
		direction SMALLINT NOT NULL,
		was_correct BOOLEAN NOT NULL,
		duration_seconds BIGINT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_duel_results_winner_id ON duel_results(winner_id)`,
}

func main() {
	dbCfg := config.LoadDatabase()

	db, err := sql.Open("postgres", dbCfg.DSN())
	if err != nil {
		log.Fatalf("[Migrate] Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("[Migrate] Failed to reach database: %v", err)
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("[Migrate] Statement %d failed: %v", i+1, err)
		}
	}
	log.Printf("[Migrate] Applied %d statements", len(statements))
}
