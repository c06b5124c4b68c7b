package blockchain

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// SolanaClient handles Solana blockchain interactions
type SolanaClient struct {
	rpcClient *rpc.Client
	network   string
}

// NewSolanaClient creates a new Solana client for the given network.
func NewSolanaClient(network string) *SolanaClient {
	var rpcURL string
	switch network {
	case "mainnet-beta":
		rpcURL = "https://api.mainnet-beta.solana.com"
	case "devnet":
		rpcURL = "https://api.devnet.solana.com"
	case "testnet":
		rpcURL = "https://api.testnet.solana.com"
	default:
		rpcURL = "https://api.devnet.solana.com"
	}

	return &SolanaClient{
		rpcClient: rpc.New(rpcURL),
		network:   network,
	}
}

// RPC exposes the underlying RPC client for instruction senders.
func (s *SolanaClient) RPC() *rpc.Client {
	return s.rpcClient
}

// ValidateWalletAddress validates a Solana wallet address format
func ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// GetSOLBalance gets the SOL balance for a wallet
func (s *SolanaClient) GetSOLBalance(ctx context.Context, walletAddress string) (decimal.Decimal, error) {
	pubKey, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := s.rpcClient.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, err
	}

	// Convert lamports to SOL
	return decimal.NewFromInt(int64(balance.Value)).Div(decimal.NewFromInt(1_000_000_000)), nil
}

// TransactionDetails holds the parsed details of a verified transaction
type TransactionDetails struct {
	Signature string
	Sender    string
	Receiver  string
	Amount    uint64 // lamports
	Confirmed bool
}

// VerifyTransaction checks whether a transaction reference is confirmed with
// at least minConfirmations and returns the transferred amount. A nil result
// with nil error means the transaction is not (yet) confirmed.
func (s *SolanaClient) VerifyTransaction(ctx context.Context, txHash string, minConfirmations int) (*TransactionDetails, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction signature: %w", err)
	}

	status, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}

	if len(status.Value) == 0 || status.Value[0] == nil {
		return nil, nil // not found
	}

	st := status.Value[0]
	if st.Err != nil {
		log.Printf("[SolanaClient] Transaction %s failed on-chain: %v", txHash, st.Err)
		return nil, fmt.Errorf("transaction execution failed")
	}

	// Finalized transactions report a nil confirmation count; anything else
	// must meet the requested threshold.
	if st.ConfirmationStatus != rpc.ConfirmationStatusFinalized {
		if st.ConfirmationStatus != rpc.ConfirmationStatusConfirmed {
			return nil, nil
		}
		if st.Confirmations != nil && *st.Confirmations < uint64(minConfirmations) {
			return nil, nil
		}
	}

	tx, err := s.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction details: %w", err)
	}

	transaction, err := tx.Transaction.GetTransaction()
	if err != nil {
		log.Printf("[SolanaClient] Failed to decode transaction %s: %v", txHash, err)
		return &TransactionDetails{Signature: txHash, Confirmed: true}, nil
	}

	if len(transaction.Message.AccountKeys) < 2 {
		return &TransactionDetails{Signature: txHash, Confirmed: true}, nil
	}

	sender := transaction.Message.AccountKeys[0].String()
	receiver := transaction.Message.AccountKeys[1].String()

	// Net lamport movement to the receiver, taken from the balance deltas.
	// Robust for simple system transfers where the receiver is index 1.
	var amount uint64
	if len(tx.Meta.PreBalances) > 1 && len(tx.Meta.PostBalances) > 1 {
		preBalance := tx.Meta.PreBalances[1]
		postBalance := tx.Meta.PostBalances[1]
		if postBalance > preBalance {
			amount = postBalance - preBalance
		}
	}

	return &TransactionDetails{
		Signature: txHash,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Confirmed: true,
	}, nil
}
