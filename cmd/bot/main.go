package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/blockchain"
	"solana-ca-sniper/internal/config"
	"solana-ca-sniper/internal/detector"
	"solana-ca-sniper/internal/health"
	"solana-ca-sniper/internal/ingest"
	"solana-ca-sniper/internal/jupiter"
	"solana-ca-sniper/internal/notify"
	"solana-ca-sniper/internal/price"
	"solana-ca-sniper/internal/storage"
	"solana-ca-sniper/internal/trading"
)

func main() {
	setupLogger()
	log.Info().Msg("🚀 CA sniper starting...")

	configPath := os.Getenv("CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.NewManager(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := storage.NewDB(cfg.Get().Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	wallet, err := blockchain.LoadOrCreateWallet(cfg.Get().Wallet.PrivateKeyEnv, cfg.Get().Wallet.KeyCachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load wallet")
	}

	rpc := blockchain.NewRPCClient(
		cfg.GetPrimaryRPCURL(),
		cfg.GetFallbackRPCURL(),
		os.Getenv(cfg.Get().RPC.PrimaryAPIKeyEnv),
	)

	blockhashCache := blockchain.NewBlockhashCache(rpc, cfg.GetBlockhashRefresh(), cfg.GetBlockhashTTL())
	if err := blockhashCache.Start(); err != nil {
		log.Warn().Err(err).Msg("blockhash cache failed to warm up")
	}

	balanceTracker := blockchain.NewBalanceTracker(wallet, rpc)
	if err := balanceTracker.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial balance refresh failed")
	}

	balanceSOL := balanceTracker.BalanceSOL()
	log.Info().
		Str("address", wallet.Address()).
		Float64("balance", balanceSOL).
		Msg("💰 WALLET STATUS")
	if balanceSOL == 0 && cfg.GetTrading().RealTradingEnabled {
		log.Error().
			Str("address", wallet.Address()).
			Msg("⚠️ wallet is empty, real trades will fail until it is funded")
	}

	jupCfg := cfg.Get().Jupiter
	jup := jupiter.NewClient(
		jupCfg.QuoteAPIURL,
		jupCfg.SwapAPIURL,
		time.Duration(jupCfg.TimeoutSeconds)*time.Second,
	)
	if jupCfg.MaxPriorityFeeLamports > 0 {
		jup.SetMaxPriorityFee(jupCfg.MaxPriorityFeeLamports)
	}

	priceCfg := cfg.Get().Price
	prices := price.New(price.Config{
		CacheTTL:        time.Duration(priceCfg.CacheTTLSeconds) * time.Second,
		ProviderTimeout: time.Duration(priceCfg.TimeoutSeconds) * time.Second,
		SOLUSDFallback:  priceCfg.SOLUSDFallback,
		FloorPriceSOL:   priceCfg.FloorPriceSOL,
	}, jup)

	metrics := trading.NewMetrics()
	signer := blockchain.NewTransactionSigner(wallet)
	executor := trading.NewExecutor(
		cfg.GetTrading, jup, rpc, signer, balanceTracker, prices, wallet.Address(), metrics,
	)

	ledger := trading.NewLedger(db, func() int { return cfg.GetTrading().MaxOpenPositions })
	if err := ledger.WarmStart(); err != nil {
		log.Fatal().Err(err).Msg("failed to restore open positions")
	}
	if n := ledger.Count(); n > 0 {
		log.Info().Int("positions", n).Msg("restored open positions from disk")
	}

	notifier := notify.FromConfig(cfg.GetTelegramToken(), cfg.Get().Notify.ChatID)

	monitor := trading.NewMonitor(ledger, executor, prices, cfg.GetTrading, cfg.GetMonitorInterval())
	monitor.SetOnClose(func(p *trading.Position) {
		notifier.Send(fmt.Sprintf("Position %s closed: %s (pnl %.1f%%)", p.TokenAddress, p.Status, p.PnlPercent))
	})
	monitor.Start()

	det := detector.New(gatesFrom(cfg.GetDetector()))
	cfg.SetOnChange(func(c *config.Config) {
		det.UpdateGates(gatesFrom(c.Detector))
	})

	events := make(chan ingest.Event, cfg.Get().Ingest.BufferSize)

	server := ingest.NewServer(
		cfg.Get().Ingest.ListenHost,
		cfg.Get().Ingest.ListenPort,
		events,
		func() fiber.Map {
			snap := det.Snapshot()
			total, success, failed, rate := metrics.Stats()
			return fiber.Map{
				"messages_processed": snap.MessagesProcessed,
				"addresses_found":    snap.AddressesFound,
				"open_positions":     ledger.Count(),
				"balance_sol":        balanceTracker.BalanceSOL(),
				"swaps_total":        total,
				"swaps_success":      success,
				"swaps_failed":       failed,
				"swap_success_rate":  rate,
			}
		},
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("ingest server failed")
		}
	}()
	log.Info().
		Str("host", cfg.Get().Ingest.ListenHost).
		Int("port", cfg.Get().Ingest.ListenPort).
		Msg("ingest server started")

	var ws *ingest.WSConsumer
	if wsURL := cfg.Get().Ingest.WSURL; wsURL != "" {
		ws = ingest.NewWSConsumer(wsURL, events)
		if err := ws.Start(context.Background()); err != nil {
			log.Warn().Err(err).Msg("websocket feed unavailable, HTTP ingest only")
			ws = nil
		}
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	checker := health.NewChecker(10*time.Second,
		health.Probe{Name: "rpc", Check: func(ctx context.Context) error {
			// A fresh cached blockhash proves the prefetch loop and the
			// RPC endpoint are both alive.
			if _, err := blockhashCache.Get(); err != nil {
				return err
			}
			if age := blockhashCache.Age(); age > cfg.GetBlockhashTTL() {
				return fmt.Errorf("cached blockhash stale (%s)", age.Round(time.Second))
			}
			return nil
		}},
		health.HTTPProbe("ingest", fmt.Sprintf("http://%s:%d/health",
			cfg.Get().Ingest.ListenHost, cfg.Get().Ingest.ListenPort)),
	)
	checker.Start(healthCtx)

	// Signal pipeline: every inbound message is recorded, scanned for
	// contract addresses and traded on the spot. In-flight buys are
	// tracked so shutdown can wait for their confirmation polls.
	var buys sync.WaitGroup
	go func() {
		for ev := range events {
			candidates := det.Process(ev.Text, ev.SourceKind)

			rec := &storage.Signal{
				Text:       ev.Text,
				SourceID:   ev.SourceID,
				SourceKind: ev.SourceKind,
				CreatedAt:  storage.Now(),
			}
			if len(candidates) > 0 {
				rec.TokenAddress = candidates[0].Address
				rec.Platform = string(candidates[0].Platform)
			}
			sigID, err := db.InsertSignal(rec)
			if err != nil {
				log.Error().Err(err).Msg("failed to record signal")
			}

			for _, cand := range candidates {
				buys.Add(1)
				go func(c detector.Candidate) {
					defer buys.Done()
					handleCandidate(cfg, executor, ledger, notifier, wallet.Address(), c)
				}(cand)
			}

			if sigID > 0 && len(candidates) > 0 {
				if err := db.MarkSignalProcessed(sigID); err != nil {
					log.Warn().Err(err).Int64("signal", sigID).Msg("failed to mark signal processed")
				}
			}
		}
	}()

	// Balance refresh loop
	go func() {
		ticker := time.NewTicker(cfg.GetBalanceRefresh())
		defer ticker.Stop()
		for range ticker.C {
			if err := balanceTracker.Refresh(context.Background()); err != nil {
				log.Debug().Err(err).Msg("balance refresh failed")
			}
		}
	}()

	// Heartbeat: periodic stats summary so a quiet bot is distinguishable
	// from a dead one.
	go func() {
		minutes := cfg.Get().Monitor.HeartbeatMinutes
		if minutes <= 0 {
			minutes = 10
		}
		ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			stats, err := db.GetStats()
			if err != nil {
				log.Warn().Err(err).Msg("heartbeat stats query failed")
				continue
			}
			log.Info().
				Int("trades", stats.TotalTrades).
				Int("active", stats.ActiveTrades).
				Float64("winRate", stats.WinRate).
				Float64("avgPnl", stats.AvgPnlPercent).
				Bool("healthy", checker.AllHealthy()).
				Msg("💓 heartbeat")
			notifier.Send(fmt.Sprintf("💓 %d trades (%d active), win rate %.0f%%, avg pnl %.1f%%",
				stats.TotalTrades, stats.ActiveTrades, stats.WinRate, stats.AvgPnlPercent))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	healthCancel()
	if ws != nil {
		ws.Close()
	}
	server.Shutdown()
	monitor.Stop()

	// A buy that already broadcast must finish its confirmation poll so
	// the on-chain outcome lands in the ledger before the database goes.
	if !waitBounded(&buys, 3*time.Minute) {
		log.Warn().Msg("timed out waiting for in-flight buys")
	}

	blockhashCache.Stop()
	db.Close()
	log.Info().Msg("goodbye 👋")
}

// waitBounded waits for the group up to the deadline. Returns false on
// timeout.
func waitBounded(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// handleCandidate runs one detected address through the buy path and
// admits the fill into the ledger.
func handleCandidate(
	cfg *config.Manager,
	executor *trading.Executor,
	ledger *trading.Ledger,
	notifier notify.Notifier,
	walletAddress string,
	cand detector.Candidate,
) {
	trad := cfg.GetTrading()

	log.Info().
		Str("mint", cand.Address).
		Str("platform", string(cand.Platform)).
		Float64("confidence", cand.Confidence).
		Msg("🎯 candidate detected")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := executor.Buy(ctx, cand.Address, trad.BuyAmountSOL, trad.SlippageBps)
	if err != nil {
		log.Warn().Err(err).Str("mint", cand.Address).Msg("buy failed")
		return
	}

	pos, err := ledger.Open(
		cand.Address, string(cand.Platform),
		result.PriceSOL, result.AmountFilled,
		walletAddress, result.TxSig,
	)
	if err != nil {
		log.Error().Err(err).Str("mint", cand.Address).Str("tx", result.TxSig).
			Msg("bought but could not open position, manual intervention needed")
		return
	}

	log.Info().
		Str("mint", pos.TokenAddress).
		Float64("price", pos.BuyPrice).
		Float64("amount", pos.AmountBought).
		Str("tx", pos.BuyTxRef).
		Msg("✅ position opened")
	notifier.Send(fmt.Sprintf("Bought %s on %s at %.9f SOL (tx %s)",
		cand.Address, cand.Platform, result.PriceSOL, result.TxSig))
}

func gatesFrom(d config.DetectorConfig) detector.Gates {
	return detector.Gates{
		Pumpfun:  d.PumpfunEnabled,
		Moonshot: d.MoonshotEnabled,
		Raydium:  d.RaydiumEnabled,
		Native:   d.NativeEnabled,
	}
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
