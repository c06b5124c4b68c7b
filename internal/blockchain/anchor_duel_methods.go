package blockchain

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// StartDuel fixes the entry price of a matched duel on-chain. entryPrice is
// in micro-units (price * 1e6), matching the resolve call.
func (c *AnchorClient) StartDuel(
	ctx context.Context,
	duelID uint64,
	entryPrice uint64,
) (string, error) {
	duelPDA, _, err := c.GetDuelPDA(duelID)
	if err != nil {
		return "", fmt.Errorf("failed to derive duel PDA: %w", err)
	}

	// Instruction data: discriminator (8 bytes) + entry_price u64 LE
	data := make([]byte, 16)
	copy(data[0:8], instructionDiscriminator("start_duel"))
	binary.LittleEndian.PutUint64(data[8:16], entryPrice)

	accounts := []*solana.AccountMeta{
		{PublicKey: duelPDA, IsWritable: true, IsSigner: false},
		{PublicKey: c.authority.PublicKey(), IsWritable: false, IsSigner: true},
	}

	return c.sendInstruction(ctx, accounts, data)
}

// ResolveDuel settles a duel on-chain: the program compares exitPrice to the
// stored entry price, pays the winner from the vault and sends the fee to the
// collector. exitPrice is in micro-units.
func (c *AnchorClient) ResolveDuel(
	ctx context.Context,
	duelID uint64,
	exitPrice uint64,
	player1 solana.PublicKey,
	player2 solana.PublicKey,
) (string, error) {
	duelPDA, _, err := c.GetDuelPDA(duelID)
	if err != nil {
		return "", fmt.Errorf("failed to derive duel PDA: %w", err)
	}

	// Instruction data: discriminator (8 bytes) + exit_price u64 LE
	data := make([]byte, 16)
	copy(data[0:8], instructionDiscriminator("resolve_duel"))
	binary.LittleEndian.PutUint64(data[8:16], exitPrice)

	accounts := []*solana.AccountMeta{
		{PublicKey: duelPDA, IsWritable: true, IsSigner: false},
		{PublicKey: player1, IsWritable: true, IsSigner: false},
		{PublicKey: player2, IsWritable: true, IsSigner: false},
		{PublicKey: c.feeCollector, IsWritable: true, IsSigner: false},
		{PublicKey: c.authority.PublicKey(), IsWritable: false, IsSigner: true},
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
	}

	return c.sendInstruction(ctx, accounts, data)
}

// CancelDuel cancels an unmatched duel on-chain and refunds the creator's
// escrowed stake.
func (c *AnchorClient) CancelDuel(
	ctx context.Context,
	duelID uint64,
	refundWallet solana.PublicKey,
) (string, error) {
	duelPDA, _, err := c.GetDuelPDA(duelID)
	if err != nil {
		return "", fmt.Errorf("failed to derive duel PDA: %w", err)
	}

	data := make([]byte, 8)
	copy(data, instructionDiscriminator("cancel_duel"))

	accounts := []*solana.AccountMeta{
		{PublicKey: duelPDA, IsWritable: true, IsSigner: false},
		{PublicKey: refundWallet, IsWritable: true, IsSigner: false},
		{PublicKey: c.authority.PublicKey(), IsWritable: false, IsSigner: true},
		{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
	}

	return c.sendInstruction(ctx, accounts, data)
}
