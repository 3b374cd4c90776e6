package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/config"
	"solana-ca-sniper/internal/price"
	"solana-ca-sniper/internal/storage"
	"solana-ca-sniper/internal/trading"
)

// Dry run of the full trade lifecycle against a local fake price feed:
// simulated buy, price jump, take-profit exit through the monitor. No
// network, no keys, no real money.

const simMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

// priceFeed serves dexscreener-shaped JSON with a settable USD price.
type priceFeed struct {
	mu       sync.Mutex
	priceUsd string
}

func (f *priceFeed) Set(p string) {
	f.mu.Lock()
	f.priceUsd = p
	f.mu.Unlock()
}

func (f *priceFeed) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	p := f.priceUsd
	f.mu.Unlock()
	fmt.Fprintf(w, `{"pairs":[{"priceUsd":"%s"}]}`, p)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Info().Msg("🚀 STARTING SIMULATION MODE 🚀")

	tradingCfg := config.TradingConfig{
		RealTradingEnabled: false,
		BuyAmountSOL:       0.01,
		SlippageBps:        500,
		TakeProfitPercent:  75,
		StopLossPercent:    40,
		MaxOpenPositions:   3,
		CooldownSeconds:    0,
	}
	cfgFn := func() config.TradingConfig { return tradingCfg }

	// Local price feed standing in for dexscreener.
	feed := &priceFeed{}
	feed.Set("0.002")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind price feed")
	}
	go http.Serve(ln, feed)

	prices := price.New(price.Config{
		CacheTTL:        100 * time.Millisecond,
		ProviderTimeout: 2 * time.Second,
		SOLUSDFallback:  200,
		FloorPriceSOL:   1e-9,
	}, nil)
	prices.DexScreenerURL = "http://" + ln.Addr().String() + "/pairs"
	prices.BirdeyeURL = "http://127.0.0.1:1/birdeye"
	prices.PumpfunURL = "http://127.0.0.1:1/pumpfun"
	prices.SetSOLUSDRate(200)

	dir, err := os.MkdirTemp("", "sim")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	db, err := storage.NewDB(filepath.Join(dir, "sim.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	metrics := trading.NewMetrics()
	executor := trading.NewExecutor(cfgFn, nil, nil, nil, nil, prices, "SimWallet", metrics)
	ledger := trading.NewLedger(db, func() int { return tradingCfg.MaxOpenPositions })

	monitor := trading.NewMonitor(ledger, executor, prices, cfgFn, time.Second)
	monitor.SetOnClose(func(p *trading.Position) {
		log.Info().
			Str("mint", p.TokenAddress).
			Str("status", string(p.Status)).
			Float64("pnl", p.PnlPercent).
			Msg("position closed")
	})

	ctx := context.Background()

	// Step 1: simulated buy at the feed price.
	log.Info().Msg("--- STEP 1: SIMULATED BUY ---")
	result, err := executor.Buy(ctx, simMint, tradingCfg.BuyAmountSOL, tradingCfg.SlippageBps)
	if err != nil {
		log.Fatal().Err(err).Msg("simulated buy failed")
	}
	if _, err := ledger.Open(simMint, "pumpfun", result.PriceSOL, result.AmountFilled, "SimWallet", result.TxSig); err != nil {
		log.Fatal().Err(err).Msg("failed to open position")
	}
	log.Info().
		Float64("price", result.PriceSOL).
		Float64("tokens", result.AmountFilled).
		Str("tx", result.TxSig).
		Msg("✅ bought")

	// Step 2: price jumps 2.5x, past the take-profit threshold.
	log.Info().Msg("--- STEP 2: PRICE JUMP (2.5X) ---")
	feed.Set("0.005")
	time.Sleep(200 * time.Millisecond) // let the quote cache expire

	// Step 3: one monitor pass should sell and close.
	log.Info().Msg("--- STEP 3: MONITOR PASS ---")
	monitor.Cycle()

	if n := ledger.Count(); n == 0 {
		log.Info().Msg("✅ SUCCESS! Position automatically sold.")
	} else {
		log.Error().Int("positions", n).Msg("❌ FAIL: position still open")
		os.Exit(1)
	}

	stats, err := db.GetStats()
	if err == nil {
		log.Info().
			Int("trades", stats.TotalTrades).
			Float64("avgPnl", stats.AvgPnlPercent).
			Msg("ledger stats")
	}

	log.Info().Msg("🏁 SIMULATION COMPLETE")
}
