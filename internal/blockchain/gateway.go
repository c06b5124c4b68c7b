package blockchain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramGateway adapts the Anchor client to callers that hold wallets as
// base58 strings.
type ProgramGateway struct {
	anchor *AnchorClient
}

func NewProgramGateway(anchor *AnchorClient) *ProgramGateway {
	return &ProgramGateway{anchor: anchor}
}

func (g *ProgramGateway) StartDuel(ctx context.Context, duelID uint64, entryPrice uint64) (string, error) {
	return g.anchor.StartDuel(ctx, duelID, entryPrice)
}

func (g *ProgramGateway) ResolveDuel(ctx context.Context, duelID uint64, exitPrice uint64, player1Wallet, player2Wallet string) (string, error) {
	player1, err := solana.PublicKeyFromBase58(player1Wallet)
	if err != nil {
		return "", fmt.Errorf("invalid player 1 wallet %s: %w", player1Wallet, err)
	}
	player2, err := solana.PublicKeyFromBase58(player2Wallet)
	if err != nil {
		return "", fmt.Errorf("invalid player 2 wallet %s: %w", player2Wallet, err)
	}
	return g.anchor.ResolveDuel(ctx, duelID, exitPrice, player1, player2)
}

func (g *ProgramGateway) CancelDuel(ctx context.Context, duelID uint64, refundWallet string) (string, error) {
	wallet, err := solana.PublicKeyFromBase58(refundWallet)
	if err != nil {
		return "", fmt.Errorf("invalid refund wallet %s: %w", refundWallet, err)
	}
	return g.anchor.CancelDuel(ctx, duelID, wallet)
}
