package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/blockchain"
	"solana-ca-sniper/internal/jupiter"
)

// USDCMint is used for the SOL/USD rate probe.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// probeTokenUnits is one whole token at the 6 decimals pump.fun and
// most memecoins use.
const probeTokenUnits = 1_000_000

// Quote is one resolved price.
type Quote struct {
	Mint      string
	PriceSOL  float64
	Source    string
	FetchedAt time.Time

	// Degraded marks a floor-price fallback after every provider
	// failed. Callers should treat the value as a placeholder.
	Degraded bool
}

// Config tunes the aggregator.
type Config struct {
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
	SOLUSDFallback  float64
	FloorPriceSOL   float64
}

// Aggregator resolves token prices through a fixed provider chain:
// Jupiter quote probe, DexScreener, Birdeye, then the pump.fun frontend
// API. Providers run sequentially, each under its own timeout; the
// first strictly positive price wins.
type Aggregator struct {
	cfg        Config
	jup        *jupiter.Client
	httpClient *http.Client

	// Provider endpoints, overridable in tests.
	DexScreenerURL string
	BirdeyeURL     string
	PumpfunURL     string

	mu    sync.RWMutex
	cache map[string]Quote

	rateMu        sync.Mutex
	solUSD        float64
	solUSDFetched time.Time
}

// New creates a price aggregator.
func New(cfg Config, jup *jupiter.Client) *Aggregator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 5 * time.Second
	}
	return &Aggregator{
		cfg: cfg,
		jup: jup,
		httpClient: &http.Client{
			Timeout: cfg.ProviderTimeout,
		},
		DexScreenerURL: "https://api.dexscreener.com/latest/dex/tokens",
		BirdeyeURL:     "https://public-api.birdeye.so/defi/price",
		PumpfunURL:     "https://frontend-api.pump.fun/coins",
		cache:          make(map[string]Quote),
	}
}

// GetPrice returns the token's price in SOL.
func (a *Aggregator) GetPrice(ctx context.Context, mint string) (float64, error) {
	q, err := a.GetQuote(ctx, mint)
	if err != nil {
		return 0, err
	}
	return q.PriceSOL, nil
}

// GetQuote returns the full quote with source and degradation metadata.
func (a *Aggregator) GetQuote(ctx context.Context, mint string) (Quote, error) {
	if err := blockchain.ValidateAddress(mint); err != nil {
		return Quote{}, fmt.Errorf("invalid mint: %w", err)
	}

	a.mu.RLock()
	cached, ok := a.cache[mint]
	a.mu.RUnlock()
	if ok && time.Since(cached.FetchedAt) < a.cfg.CacheTTL {
		return cached, nil
	}

	q := a.resolve(ctx, mint)

	a.mu.Lock()
	a.cache[mint] = q
	a.mu.Unlock()
	return q, nil
}

type providerFunc struct {
	name  string
	fetch func(ctx context.Context, mint string) (float64, error)
}

func (a *Aggregator) resolve(ctx context.Context, mint string) Quote {
	providers := []providerFunc{
		{"jupiter", a.fetchJupiter},
		{"dexscreener", a.fetchDexScreener},
		{"birdeye", a.fetchBirdeye},
		{"pumpfun", a.fetchPumpfun},
	}

	for _, p := range providers {
		pctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
		priceSOL, err := p.fetch(pctx, mint)
		cancel()

		if err != nil {
			log.Debug().Err(err).Str("provider", p.name).Str("mint", mint).Msg("price provider failed")
			continue
		}
		if priceSOL <= 0 {
			continue
		}

		return Quote{
			Mint:      mint,
			PriceSOL:  priceSOL,
			Source:    p.name,
			FetchedAt: time.Now(),
		}
	}

	log.Error().
		Str("mint", mint).
		Float64("floorPriceSol", a.cfg.FloorPriceSOL).
		Msg("all price providers failed, serving floor price")

	return Quote{
		Mint:      mint,
		PriceSOL:  a.cfg.FloorPriceSOL,
		Source:    "floor",
		FetchedAt: time.Now(),
		Degraded:  true,
	}
}

// fetchJupiter probes the quote API with one whole token and derives
// the SOL price from the returned lamports.
func (a *Aggregator) fetchJupiter(ctx context.Context, mint string) (float64, error) {
	if a.jup == nil {
		return 0, fmt.Errorf("jupiter client not configured")
	}

	quote, err := a.jup.GetQuote(ctx, mint, jupiter.SOLMint, probeTokenUnits, 100)
	if err != nil {
		return 0, err
	}
	outLamports, err := quote.OutAmountUint()
	if err != nil {
		return 0, err
	}
	return float64(outLamports) / 1e9, nil
}

func (a *Aggregator) fetchDexScreener(ctx context.Context, mint string) (float64, error) {
	var resp struct {
		Pairs []struct {
			PriceUsd string `json:"priceUsd"`
		} `json:"pairs"`
	}
	if err := a.getJSON(ctx, a.DexScreenerURL+"/"+mint, &resp); err != nil {
		return 0, err
	}
	if len(resp.Pairs) == 0 {
		return 0, fmt.Errorf("no pairs")
	}

	usd, err := strconv.ParseFloat(resp.Pairs[0].PriceUsd, 64)
	if err != nil {
		return 0, fmt.Errorf("parse priceUsd: %w", err)
	}
	return a.usdToSOL(ctx, usd), nil
}

func (a *Aggregator) fetchBirdeye(ctx context.Context, mint string) (float64, error) {
	var resp struct {
		Data struct {
			Value float64 `json:"value"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := a.getJSON(ctx, a.BirdeyeURL+"?address="+mint, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("birdeye unsuccessful")
	}
	return a.usdToSOL(ctx, resp.Data.Value), nil
}

// fetchPumpfun derives the price from the bonding curve's virtual
// reserves (lamports over 6-decimal token units).
func (a *Aggregator) fetchPumpfun(ctx context.Context, mint string) (float64, error) {
	var resp struct {
		VirtualSolReserves   float64 `json:"virtual_sol_reserves"`
		VirtualTokenReserves float64 `json:"virtual_token_reserves"`
	}
	if err := a.getJSON(ctx, a.PumpfunURL+"/"+mint, &resp); err != nil {
		return 0, err
	}
	if resp.VirtualTokenReserves <= 0 {
		return 0, fmt.Errorf("no reserve data")
	}
	return (resp.VirtualSolReserves / 1e9) / (resp.VirtualTokenReserves / 1e6), nil
}

func (a *Aggregator) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// usdToSOL converts a USD price using the cached SOL/USD rate.
func (a *Aggregator) usdToSOL(ctx context.Context, usd float64) float64 {
	rate := a.solUSDRate(ctx)
	if rate <= 0 {
		return 0
	}
	return usd / rate
}

// solUSDRate returns the SOL/USD rate, refreshed at most once a minute
// via a Jupiter SOL to USDC probe. Falls back to the configured
// constant when the probe fails.
func (a *Aggregator) solUSDRate(ctx context.Context) float64 {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	if a.solUSD > 0 && time.Since(a.solUSDFetched) < time.Minute {
		return a.solUSD
	}

	if a.jup != nil {
		usdc, err := a.probeSOLUSDC(ctx)
		if err == nil {
			a.solUSD = float64(usdc) / 1e6
			a.solUSDFetched = time.Now()
			return a.solUSD
		}
		log.Warn().Err(err).Msg("SOL/USD probe failed, using fallback rate")
	}

	a.solUSD = a.cfg.SOLUSDFallback
	a.solUSDFetched = time.Now()
	return a.solUSD
}

// probeSOLUSDC quotes 1 SOL into USDC units.
func (a *Aggregator) probeSOLUSDC(ctx context.Context) (uint64, error) {
	quote, err := a.jup.GetQuote(ctx, jupiter.SOLMint, USDCMint, 1_000_000_000, 100)
	if err != nil {
		return 0, err
	}
	usdc, err := quote.OutAmountUint()
	if err != nil {
		return 0, err
	}
	if usdc == 0 {
		return 0, fmt.Errorf("probe returned zero USDC")
	}
	return usdc, nil
}

// SetSOLUSDRate overrides the cached rate (tests and external feeds).
func (a *Aggregator) SetSOLUSDRate(rate float64) {
	a.rateMu.Lock()
	a.solUSD = rate
	a.solUSDFetched = time.Now()
	a.rateMu.Unlock()
}
