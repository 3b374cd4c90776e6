package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/config"
)

// seller is the executor surface the monitor needs.
type seller interface {
	Sell(ctx context.Context, mint string, amountToken float64) (*TxResult, error)
}

// Monitor watches ACTIVE positions on a ticker and triggers exits.
// Exit priority per cycle: take-profit, then stop-loss, then max-hold
// timeout. Both profit and loss thresholds are inclusive. A failed
// triggered sell moves the position to ERROR and is never retried.
type Monitor struct {
	ledger  *Ledger
	exec    seller
	prices  priceSource
	cfgFn   func() config.TradingConfig
	onClose func(*Position)

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a position monitor.
func NewMonitor(ledger *Ledger, exec seller, prices priceSource, cfgFn func() config.TradingConfig, interval time.Duration) *Monitor {
	return &Monitor{
		ledger:   ledger,
		exec:     exec,
		prices:   prices,
		cfgFn:    cfgFn,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetOnClose registers a callback invoked after each terminal
// transition (notifications, stats).
func (m *Monitor) SetOnClose(fn func(*Position)) {
	m.onClose = fn
}

// Start launches the monitor loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	log.Info().Dur("interval", m.interval).Msg("position monitor started")
}

// Stop signals the loop to exit and waits for the current cycle to
// finish. Sells already in flight complete on their own context.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Cycle()
		}
	}
}

// Cycle evaluates every ACTIVE position once. Exported so the
// simulation command can drive the monitor synchronously.
func (m *Monitor) Cycle() {
	cfg := m.cfgFn()

	for _, p := range m.ledger.Active() {
		m.evaluate(p, cfg)
	}
}

func (m *Monitor) evaluate(p *Position, cfg config.TradingConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	quote, err := m.prices.GetQuote(ctx, p.TokenAddress)
	cancel()
	if err != nil || quote.Degraded {
		// No trustworthy price this cycle. Skip rather than trigger a
		// stop-loss off a floor placeholder.
		log.Warn().
			Err(err).
			Bool("degraded", quote.Degraded).
			Str("token", p.TokenAddress).
			Msg("price check skipped this cycle")
		return
	}

	changePercent := (quote.PriceSOL - p.BuyPrice) / p.BuyPrice * 100

	var status Status
	switch {
	case changePercent >= cfg.TakeProfitPercent:
		status = StatusClosedProfit
	case changePercent <= -cfg.StopLossPercent:
		status = StatusClosedLoss
	case cfg.MaxHoldMinutes > 0 && time.Since(p.OpenedAt) >= time.Duration(cfg.MaxHoldMinutes)*time.Minute:
		status = StatusClosedTimeout
	default:
		return
	}

	log.Info().
		Str("token", p.TokenAddress).
		Float64("changePercent", changePercent).
		Str("trigger", string(status)).
		Msg("exit triggered")

	m.sellAndClose(p, status)
}

// sellAndClose executes the triggered sell on its own bounded context
// so a shutdown does not abandon an in-flight confirmation.
func (m *Monitor) sellAndClose(p *Position, status Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := m.exec.Sell(ctx, p.TokenAddress, p.AmountBought)
	if err != nil {
		log.Error().
			Err(err).
			Str("token", p.TokenAddress).
			Msg("triggered sell failed, position moved to ERROR")
		closed, cerr := m.ledger.Close(p.TokenAddress, StatusError, 0, "")
		if cerr != nil && cerr != ErrNotActive {
			log.Error().Err(cerr).Str("token", p.TokenAddress).Msg("error-state close failed")
		}
		if closed != nil && m.onClose != nil {
			m.onClose(closed)
		}
		return
	}

	closed, err := m.ledger.Close(p.TokenAddress, status, result.PriceSOL, result.TxSig)
	if err != nil && err != ErrNotActive {
		log.Error().Err(err).Str("token", p.TokenAddress).Msg("close persist failed")
	}
	if closed != nil && m.onClose != nil {
		m.onClose(closed)
	}
}
