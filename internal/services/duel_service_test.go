package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"duel-arena/internal/blockchain"
	"duel-arena/internal/models"
	"duel-arena/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeVerifier serves canned transaction details keyed by signature.
type fakeVerifier struct {
	details map[string]*blockchain.TransactionDetails
	err     error
}

func (f *fakeVerifier) VerifyTransaction(ctx context.Context, txHash string, minConfirmations int) (*blockchain.TransactionDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[txHash]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", txHash)
	}
	return d, nil
}

func (f *fakeVerifier) addDeposit(signature, sender string, amount uint64, confirmed bool) {
	if f.details == nil {
		f.details = make(map[string]*blockchain.TransactionDetails)
	}
	f.details[signature] = &blockchain.TransactionDetails{
		Signature: signature,
		Sender:    sender,
		Amount:    amount,
		Confirmed: confirmed,
	}
}

// fakeChain counts program calls and returns deterministic signatures.
type fakeChain struct {
	mu           sync.Mutex
	startCalls   int
	resolveCalls int
	cancelCalls  int
	failStart    error
	failResolve  error
	failCancel   error
}

func (f *fakeChain) StartDuel(ctx context.Context, duelID uint64, entryPrice uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart != nil {
		return "", f.failStart
	}
	f.startCalls++
	return fmt.Sprintf("start-sig-%d-%d", duelID, f.startCalls), nil
}

func (f *fakeChain) ResolveDuel(ctx context.Context, duelID uint64, exitPrice uint64, player1Wallet, player2Wallet string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failResolve != nil {
		return "", f.failResolve
	}
	f.resolveCalls++
	return fmt.Sprintf("resolve-sig-%d-%d", duelID, f.resolveCalls), nil
}

func (f *fakeChain) CancelDuel(ctx context.Context, duelID uint64, refundWallet string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCancel != nil {
		return "", f.failCancel
	}
	f.cancelCalls++
	return fmt.Sprintf("cancel-sig-%d-%d", duelID, f.cancelCalls), nil
}

// fakeOracle serves a sequence of prices; the last one repeats.
type fakeOracle struct {
	mu     sync.Mutex
	prices []decimal.Decimal
	err    error
}

func (f *fakeOracle) GetPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return decimal.Zero, f.err
	}
	if len(f.prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price configured for %s", pair)
	}
	price := f.prices[0]
	if len(f.prices) > 1 {
		f.prices = f.prices[1:]
	}
	return price, nil
}

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:duel_test_%d?mode=memory&cache=shared&_busy_timeout=5000", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Duel{},
		&models.DuelTransaction{},
		&models.DuelStatistics{},
		&models.DuelResult{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

type testEnv struct {
	db       *gorm.DB
	repo     *repository.Repository
	service  *DuelService
	verifier *fakeVerifier
	chain    *fakeChain
	oracle   *fakeOracle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	repo := repository.NewRepository(db)
	verifier := &fakeVerifier{}
	chain := &fakeChain{}
	oracle := &fakeOracle{prices: []decimal.Decimal{decimal.RequireFromString("195.50")}}
	service := NewDuelService(repo, verifier, chain, oracle, DuelServiceConfig{
		FeePercent:       5,
		MinConfirmations: 1,
		DuelDuration:     time.Minute,
		CountdownDelay:   time.Second,
		PendingTTL:       time.Minute,
		WorkerCount:      1,
	})
	return &testEnv{db: db, repo: repo, service: service, verifier: verifier, chain: chain, oracle: oracle}
}

// testWallet returns a deterministic valid base58 wallet address per user.
func testWallet(id uint) string {
	raw := make([]byte, 32)
	raw[31] = byte(id)
	return base58.Encode(raw)
}

func (e *testEnv) createUser(t *testing.T, id uint) *models.User {
	t.Helper()
	user := &models.User{
		ID:            id,
		WalletAddress: testWallet(id),
		Nickname:      fmt.Sprintf("player%d", id),
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %d: %v", id, err)
	}
	return user
}

func (e *testEnv) createDuel(t *testing.T, player1 uint, bet int64, req *models.CreateDuelRequest) *models.Duel {
	t.Helper()
	if req == nil {
		dir := models.DirectionUp
		req = &models.CreateDuelRequest{
			BetAmount: bet,
			Direction: &dir,
			Signature: fmt.Sprintf("sig-%d-%d", player1, testDBCounter.Add(1)),
		}
	}
	e.verifier.addDeposit(req.Signature, testWallet(player1), uint64(bet), true)
	duel, err := e.service.CreateDuel(context.Background(), player1, req)
	if err != nil {
		t.Fatalf("failed to create duel: %v", err)
	}
	return duel
}

func TestCreateDuel(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	dir := models.DirectionUp
	req := &models.CreateDuelRequest{
		BetAmount: 1_000_000_000,
		Direction: &dir,
		Signature: "deposit-sig-1",
	}
	env.verifier.addDeposit("deposit-sig-1", testWallet(1), 1_000_000_000, true)

	duel, err := env.service.CreateDuel(context.Background(), 1, req)
	if err != nil {
		t.Fatalf("CreateDuel failed: %v", err)
	}
	if duel.Status != models.DuelStatusPending {
		t.Errorf("status = %s, want PENDING", duel.Status)
	}
	if duel.ExpiresAt == nil {
		t.Error("expected an expiry deadline")
	}
	if duel.Symbol != "SOL/USD" {
		t.Errorf("symbol = %s, want default SOL/USD", duel.Symbol)
	}

	tx, err := env.repo.GetTransactionByHash(context.Background(), "deposit-sig-1")
	if err != nil {
		t.Fatalf("deposit record missing: %v", err)
	}
	if tx.TransactionType != models.DuelTransactionTypeDeposit || tx.Amount != 1_000_000_000 {
		t.Errorf("deposit record wrong: type=%s amount=%d", tx.TransactionType, tx.Amount)
	}
}

func TestCreateDuelRejectsUnconfirmedDeposit(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	dir := models.DirectionUp
	env.verifier.addDeposit("unconfirmed-sig", testWallet(1), 1_000_000_000, false)

	_, err := env.service.CreateDuel(context.Background(), 1, &models.CreateDuelRequest{
		BetAmount: 1_000_000_000,
		Direction: &dir,
		Signature: "unconfirmed-sig",
	})
	if !errors.Is(err, ErrDeposit) {
		t.Fatalf("err = %v, want ErrDeposit", err)
	}

	var count int64
	env.db.Model(&models.Duel{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no duel rows, found %d", count)
	}
}

func TestCreateDuelRejectsReusedSignature(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	dir := models.DirectionUp
	env.verifier.addDeposit("shared-sig", testWallet(1), 500, true)
	if _, err := env.service.CreateDuel(context.Background(), 1, &models.CreateDuelRequest{
		BetAmount: 500,
		Direction: &dir,
		Signature: "shared-sig",
	}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := env.service.CreateDuel(context.Background(), 2, &models.CreateDuelRequest{
		BetAmount: 500,
		Direction: &dir,
		Signature: "shared-sig",
	})
	if !errors.Is(err, ErrDeposit) {
		t.Fatalf("err = %v, want ErrDeposit", err)
	}

	var count int64
	env.db.Model(&models.Duel{}).Count(&count)
	if count != 1 {
		t.Errorf("expected one duel row, found %d", count)
	}
}

func TestCreateDuelRejectsWrongSender(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	dir := models.DirectionDown
	env.verifier.addDeposit("foreign-sig", "someone-else", 500, true)

	_, err := env.service.CreateDuel(context.Background(), 1, &models.CreateDuelRequest{
		BetAmount: 500,
		Direction: &dir,
		Signature: "foreign-sig",
	})
	if !errors.Is(err, ErrDeposit) {
		t.Fatalf("err = %v, want ErrDeposit", err)
	}
}

func TestCreateDuelRejectsShortDeposit(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	dir := models.DirectionUp
	env.verifier.addDeposit("short-sig", testWallet(1), 499, true)

	_, err := env.service.CreateDuel(context.Background(), 1, &models.CreateDuelRequest{
		BetAmount: 500,
		Direction: &dir,
		Signature: "short-sig",
	})
	if !errors.Is(err, ErrDeposit) {
		t.Fatalf("err = %v, want ErrDeposit", err)
	}
}

func TestCreateDuelRejectsTakenDuelID(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	dir := models.DirectionUp
	chainID := int64(4242)
	env.createDuel(t, 1, 500, &models.CreateDuelRequest{
		DuelID:    &chainID,
		BetAmount: 500,
		Direction: &dir,
		Signature: "first-id-sig",
	})

	env.verifier.addDeposit("second-id-sig", testWallet(2), 500, true)
	_, err := env.service.CreateDuel(context.Background(), 2, &models.CreateDuelRequest{
		DuelID:    &chainID,
		BetAmount: 500,
		Direction: &dir,
		Signature: "second-id-sig",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreateDuelRejectsMalformedWallet(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 1, WalletAddress: "not-base58-0OIl", Nickname: "player1"}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	dir := models.DirectionUp
	env.verifier.addDeposit("bad-wallet-sig", user.WalletAddress, 500, true)

	_, err := env.service.CreateDuel(context.Background(), 1, &models.CreateDuelRequest{
		BetAmount: 500,
		Direction: &dir,
		Signature: "bad-wallet-sig",
	})
	if !errors.Is(err, ErrMissingWallet) {
		t.Fatalf("err = %v, want ErrMissingWallet", err)
	}
}

func TestJoinDuel(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	duel := env.createDuel(t, 1, 500, nil)

	env.verifier.addDeposit("join-sig", testWallet(2), 500, true)
	joined, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig"})
	if err != nil {
		t.Fatalf("JoinDuel failed: %v", err)
	}
	if joined.Status != models.DuelStatusCountdown {
		t.Errorf("status = %s, want COUNTDOWN", joined.Status)
	}
	if joined.Player2ID == nil || *joined.Player2ID != 2 {
		t.Errorf("player2 = %v, want 2", joined.Player2ID)
	}
	if joined.Player2Amount == nil || *joined.Player2Amount != 500 {
		t.Errorf("player2 amount = %v, want 500", joined.Player2Amount)
	}
	if !joined.PriceAtStart.Valid {
		t.Error("expected the entry price to be fixed at join")
	}
	if joined.EscrowTxHash == nil {
		t.Error("expected the escrow tx hash to be recorded")
	}
	if env.chain.startCalls != 1 {
		t.Errorf("start chain calls = %d, want 1", env.chain.startCalls)
	}
}

func TestJoinDuelChainFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	duel := env.createDuel(t, 1, 500, nil)

	env.chain.failStart = errors.New("rpc timeout")
	env.verifier.addDeposit("join-sig", testWallet(2), 500, true)
	_, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig"})
	if !errors.Is(err, ErrChainCall) {
		t.Fatalf("err = %v, want ErrChainCall", err)
	}

	got, _ := env.repo.GetDuelByID(context.Background(), duel.ID)
	if got.Status != models.DuelStatusPending || got.Player2ID != nil {
		t.Errorf("duel = %s/%v, want PENDING with empty slot", got.Status, got.Player2ID)
	}

	// The deposit reference was released, so the same signature joins once
	// the chain recovers.
	env.chain.failStart = nil
	joined, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig"})
	if err != nil {
		t.Fatalf("retried join failed: %v", err)
	}
	if joined.Status != models.DuelStatusCountdown {
		t.Errorf("status = %s, want COUNTDOWN", joined.Status)
	}
}

func TestJoinDuelOracleFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	duel := env.createDuel(t, 1, 500, nil)

	env.oracle.err = ErrOracleUnavailable
	env.verifier.addDeposit("join-sig", testWallet(2), 500, true)
	_, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig"})
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}

	got, _ := env.repo.GetDuelByID(context.Background(), duel.ID)
	if got.Status != models.DuelStatusPending || got.Player2ID != nil {
		t.Errorf("duel = %s/%v, want PENDING with empty slot", got.Status, got.Player2ID)
	}
	if env.chain.startCalls != 0 {
		t.Errorf("start chain calls = %d, want 0", env.chain.startCalls)
	}
}

func TestJoinOwnDuelRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	duel := env.createDuel(t, 1, 500, nil)

	env.verifier.addDeposit("self-join-sig", testWallet(1), 500, true)
	_, err := env.service.JoinDuel(context.Background(), duel.ID, 1, &models.JoinDuelRequest{Signature: "self-join-sig"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestJoinNonPendingDuelRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)
	env.createUser(t, 3)

	duel := env.createDuel(t, 1, 500, nil)

	env.verifier.addDeposit("join-sig-2", testWallet(2), 500, true)
	if _, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig-2"}); err != nil {
		t.Fatalf("first join failed: %v", err)
	}

	env.verifier.addDeposit("join-sig-3", testWallet(3), 500, true)
	_, err := env.service.JoinDuel(context.Background(), duel.ID, 3, &models.JoinDuelRequest{Signature: "join-sig-3"})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
}

func TestJoinRejectedDepositLeavesDuelJoinable(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)
	env.createUser(t, 3)

	duel := env.createDuel(t, 1, 500, nil)

	// Player 2's deposit never confirmed
	env.verifier.addDeposit("bad-join-sig", testWallet(2), 500, false)
	if _, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "bad-join-sig"}); !errors.Is(err, ErrDeposit) {
		t.Fatalf("err = %v, want ErrDeposit", err)
	}

	// The duel must still be open for player 3
	env.verifier.addDeposit("good-join-sig", testWallet(3), 500, true)
	joined, err := env.service.JoinDuel(context.Background(), duel.ID, 3, &models.JoinDuelRequest{Signature: "good-join-sig"})
	if err != nil {
		t.Fatalf("join after failed attempt: %v", err)
	}
	if joined.Player2ID == nil || *joined.Player2ID != 3 {
		t.Errorf("player2 = %v, want 3", joined.Player2ID)
	}
}

func TestCancelDuel(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)

	duel := env.createDuel(t, 1, 500, nil)

	cancelled, err := env.service.CancelDuel(context.Background(), duel.ID, 1)
	if err != nil {
		t.Fatalf("CancelDuel failed: %v", err)
	}
	if cancelled.Status != models.DuelStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}
	if env.chain.cancelCalls != 1 {
		t.Errorf("cancel chain calls = %d, want 1", env.chain.cancelCalls)
	}

	txs, err := env.repo.GetDuelTransactions(context.Background(), duel.ID)
	if err != nil {
		t.Fatalf("failed to list transactions: %v", err)
	}
	var refunds int
	for _, tx := range txs {
		if tx.TransactionType == models.DuelTransactionTypeRefund {
			refunds++
		}
	}
	if refunds != 1 {
		t.Errorf("refund records = %d, want 1", refunds)
	}
}

func TestCancelDuelOnlyCreator(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	duel := env.createDuel(t, 1, 500, nil)

	_, err := env.service.CancelDuel(context.Background(), duel.ID, 2)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCancelMatchedDuelRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	duel := env.createDuel(t, 1, 500, nil)

	env.verifier.addDeposit("join-sig", testWallet(2), 500, true)
	if _, err := env.service.JoinDuel(context.Background(), duel.ID, 2, &models.JoinDuelRequest{Signature: "join-sig"}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	_, err := env.service.CancelDuel(context.Background(), duel.ID, 1)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
}

func TestExpirePendingDuels(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, 1)
	env.createUser(t, 2)

	past := time.Now().Add(-time.Minute)
	expired := &models.Duel{
		ID:        uuid.New(),
		DuelID:    9001,
		Player1ID: 1,
		BetAmount: 500,
		Status:    models.DuelStatusPending,
		ExpiresAt: &past,
	}
	if err := env.repo.CreateDuel(context.Background(), expired); err != nil {
		t.Fatalf("failed to seed expired duel: %v", err)
	}

	player2 := uint(2)
	matched := &models.Duel{
		ID:        uuid.New(),
		DuelID:    9002,
		Player1ID: 1,
		Player2ID: &player2,
		BetAmount: 500,
		Status:    models.DuelStatusMatched,
		ExpiresAt: &past,
	}
	if err := env.repo.CreateDuel(context.Background(), matched); err != nil {
		t.Fatalf("failed to seed matched duel: %v", err)
	}

	swept, err := env.service.ExpirePendingDuels(context.Background())
	if err != nil {
		t.Fatalf("ExpirePendingDuels failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	got, _ := env.repo.GetDuelByID(context.Background(), expired.ID)
	if got.Status != models.DuelStatusExpired {
		t.Errorf("expired duel status = %s, want EXPIRED", got.Status)
	}
	got, _ = env.repo.GetDuelByID(context.Background(), matched.ID)
	if got.Status != models.DuelStatusMatched {
		t.Errorf("matched duel status = %s, want MATCHED untouched", got.Status)
	}
}
