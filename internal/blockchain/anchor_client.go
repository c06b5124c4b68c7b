package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// AnchorClient invokes the duels Anchor program with the server authority
// wallet.
type AnchorClient struct {
	rpcClient    *rpc.Client
	programID    solana.PublicKey
	authority    solana.PrivateKey
	feeCollector solana.PublicKey
}

// NewAnchorClient creates a client for the duels program. authorityKey is the
// base58-encoded server wallet private key; feeCollector is the platform
// wallet that receives fees at resolution.
func NewAnchorClient(
	solanaClient *SolanaClient,
	programID string,
	authorityKey string,
	feeCollector string,
) (*AnchorClient, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}

	authority, err := solana.PrivateKeyFromBase58(authorityKey)
	if err != nil {
		return nil, fmt.Errorf("invalid server wallet private key: %w", err)
	}

	collector, err := solana.PublicKeyFromBase58(feeCollector)
	if err != nil {
		return nil, fmt.Errorf("invalid fee collector wallet: %w", err)
	}

	return &AnchorClient{
		rpcClient:    solanaClient.RPC(),
		programID:    program,
		authority:    authority,
		feeCollector: collector,
	}, nil
}

// instructionDiscriminator returns the Anchor discriminator for a global
// instruction: the first 8 bytes of sha256("global:<name>").
func instructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:8]
}

// GetDuelPDA derives the program address of a duel account from its numeric
// id.
func (c *AnchorClient) GetDuelPDA(duelID uint64) (solana.PublicKey, uint8, error) {
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, duelID)

	return solana.FindProgramAddress(
		[][]byte{[]byte("duel"), idBytes},
		c.programID,
	)
}

// sendInstruction builds, signs and submits a single-instruction transaction
// paid by the authority wallet.
func (c *AnchorClient) sendInstruction(
	ctx context.Context,
	accounts []*solana.AccountMeta,
	data []byte,
) (string, error) {
	instruction := solana.NewInstruction(c.programID, accounts, data)

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.authority.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.authority.PublicKey()) {
			return &c.authority
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return sig.String(), nil
}
