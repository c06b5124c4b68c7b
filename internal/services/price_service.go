package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// priceCacheTTL bounds provider call volume: a price fetched within the TTL
// is served from memory.
const priceCacheTTL = 5 * time.Second

// pairInfo maps a price pair to the identifiers each provider understands.
// An empty pythFeedID skips the Pyth provider for that pair.
type pairInfo struct {
	coingeckoID   string
	cryptoCompare string
	pythFeedID    string
}

var supportedPairs = map[string]pairInfo{
	"SOL/USD": {
		coingeckoID:   "solana",
		cryptoCompare: "SOL",
		pythFeedID:    "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
	},
	"PUMP/USD": {
		coingeckoID:   "pump-fun",
		cryptoCompare: "PUMP",
	},
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// PriceService resolves spot prices for duel symbols. Providers are tried in
// order: Pyth Hermes, then CoinGecko, then CryptoCompare. Values stay in
// decimal form end to end so winner determination compares exact fixed-point
// numbers.
type PriceService struct {
	mu     sync.RWMutex
	prices map[string]cachedPrice
	client *http.Client
}

func NewPriceService() *PriceService {
	return &PriceService{
		prices: make(map[string]cachedPrice),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetPrice returns the latest price for a pair such as "SOL/USD".
func (ps *PriceService) GetPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	info, ok := supportedPairs[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported price pair %s", ErrOracleUnavailable, pair)
	}

	ps.mu.RLock()
	cached, hit := ps.prices[pair]
	ps.mu.RUnlock()
	if hit && time.Since(cached.fetchedAt) < priceCacheTTL {
		return cached.price, nil
	}

	type provider struct {
		name  string
		fetch func(context.Context, pairInfo) (decimal.Decimal, error)
	}
	providers := []provider{
		{"pyth", ps.fetchPythPrice},
		{"coingecko", ps.fetchCoinGeckoPrice},
		{"cryptocompare", ps.fetchCryptoComparePrice},
	}

	var lastErr error
	for _, p := range providers {
		if p.name == "pyth" && info.pythFeedID == "" {
			continue
		}
		price, err := p.fetch(ctx, info)
		if err != nil {
			log.Printf("[PriceService] %s failed for %s: %v", p.name, pair, err)
			lastErr = err
			continue
		}
		if price.IsZero() {
			lastErr = fmt.Errorf("%s returned zero price", p.name)
			continue
		}

		ps.mu.Lock()
		ps.prices[pair] = cachedPrice{price: price, fetchedAt: time.Now()}
		ps.mu.Unlock()
		return price, nil
	}

	if lastErr != nil {
		return decimal.Zero, fmt.Errorf("%w: all providers failed for %s: %v", ErrOracleUnavailable, pair, lastErr)
	}
	return decimal.Zero, fmt.Errorf("%w: no provider for %s", ErrOracleUnavailable, pair)
}

// fetchPythPrice reads the latest price update from the Pyth Hermes endpoint.
// Pyth prices come as an integer mantissa plus exponent, which maps directly
// onto a decimal without any float round trip.
func (ps *PriceService) fetchPythPrice(ctx context.Context, info pairInfo) (decimal.Decimal, error) {
	url := fmt.Sprintf("https://hermes.pyth.network/v2/updates/price/latest?ids[]=%s", info.pythFeedID)

	body, err := ps.get(ctx, url)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Parsed []struct {
			Price struct {
				Price string `json:"price"`
				Expo  int32  `json:"expo"`
			} `json:"price"`
		} `json:"parsed"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("pyth parse error: %w", err)
	}
	if len(result.Parsed) == 0 {
		return decimal.Zero, fmt.Errorf("pyth returned no price updates")
	}

	mantissa, err := decimal.NewFromString(result.Parsed[0].Price.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pyth price value: %w", err)
	}
	return mantissa.Shift(result.Parsed[0].Price.Expo), nil
}

// fetchCoinGeckoPrice fetches a USD price from the CoinGecko simple price
// API. Response: {"solana":{"usd":195.83}}
func (ps *PriceService) fetchCoinGeckoPrice(ctx context.Context, info pairInfo) (decimal.Decimal, error) {
	url := fmt.Sprintf("https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd", info.coingeckoID)

	body, err := ps.get(ctx, url)
	if err != nil {
		return decimal.Zero, err
	}

	var result map[string]map[string]json.Number
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko parse error: %w", err)
	}

	coinData, ok := result[info.coingeckoID]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko returned no data for %s", info.coingeckoID)
	}
	usd, ok := coinData["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko returned no USD price for %s", info.coingeckoID)
	}
	return decimal.NewFromString(usd.String())
}

// fetchCryptoComparePrice fetches a USD price from CryptoCompare.
// Response: {"USD": 195.83}
func (ps *PriceService) fetchCryptoComparePrice(ctx context.Context, info pairInfo) (decimal.Decimal, error) {
	url := fmt.Sprintf("https://min-api.cryptocompare.com/data/price?fsym=%s&tsyms=USD", info.cryptoCompare)

	body, err := ps.get(ctx, url)
	if err != nil {
		return decimal.Zero, err
	}

	var result map[string]json.Number
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("cryptocompare parse error: %w", err)
	}

	usd, ok := result["USD"]
	if !ok {
		return decimal.Zero, fmt.Errorf("cryptocompare returned no USD price for %s", info.cryptoCompare)
	}
	return decimal.NewFromString(usd.String())
}

func (ps *PriceService) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := ps.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
