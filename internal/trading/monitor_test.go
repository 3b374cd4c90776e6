package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-ca-sniper/internal/config"
	"solana-ca-sniper/internal/price"
)

type fakeSeller struct {
	result *TxResult
	err    error
	calls  int
}

func (f *fakeSeller) Sell(ctx context.Context, mint string, amountToken float64) (*TxResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func monitorConfig() config.TradingConfig {
	return config.TradingConfig{
		TakeProfitPercent: 75,
		StopLossPercent:   40,
		MaxHoldMinutes:    60,
	}
}

func newTestMonitor(t *testing.T, seller *fakeSeller, prices *fakePrices, cfg config.TradingConfig) (*Monitor, *Ledger) {
	t.Helper()
	l, _ := newTestLedger(t, 10)
	m := NewMonitor(l, seller, prices, func() config.TradingConfig { return cfg }, time.Hour)
	return m, l
}

func TestTakeProfitInclusiveBoundary(t *testing.T) {
	// Buy at 1.0, price 1.75: exactly +75% with TP at 75 must trigger.
	seller := &fakeSeller{result: &TxResult{PriceSOL: 1.75, AmountFilled: 175, TxSig: "SIM-X"}}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 1.75}}
	m, l := newTestMonitor(t, seller, prices, monitorConfig())

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	m.Cycle()

	if seller.calls != 1 {
		t.Fatalf("sell calls = %d, want 1", seller.calls)
	}
	if l.Count() != 0 {
		t.Error("position should be closed")
	}
}

func TestStopLossInclusiveBoundary(t *testing.T) {
	// Buy at 1.0, price 0.625 with SL at 37.5: exactly -37.5% triggers.
	cfg := monitorConfig()
	cfg.StopLossPercent = 37.5
	seller := &fakeSeller{result: &TxResult{PriceSOL: 0.625, AmountFilled: 62.5, TxSig: "SIM-Y"}}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 0.625}}
	m, l := newTestMonitor(t, seller, prices, cfg)

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	var got Status
	m.SetOnClose(func(p *Position) { got = p.Status })
	m.Cycle()

	if seller.calls != 1 {
		t.Fatalf("sell calls = %d, want 1", seller.calls)
	}
	if got != StatusClosedLoss {
		t.Errorf("status = %s, want CLOSED_LOSS", got)
	}
}

func TestHoldBelowThresholdsDoesNothing(t *testing.T) {
	seller := &fakeSeller{result: &TxResult{PriceSOL: 1.2}}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 1.2}}
	m, l := newTestMonitor(t, seller, prices, monitorConfig())

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	m.Cycle()

	if seller.calls != 0 {
		t.Errorf("sell calls = %d, want 0 at +20%%", seller.calls)
	}
	if l.Count() != 1 {
		t.Error("position should remain active")
	}
}

func TestMaxHoldTimeout(t *testing.T) {
	cfg := monitorConfig()
	cfg.MaxHoldMinutes = 30
	seller := &fakeSeller{result: &TxResult{PriceSOL: 1.1, TxSig: "SIM-T"}}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 1.1}}
	m, l := newTestMonitor(t, seller, prices, cfg)

	p, err := l.Open(testMint, "native", 1.0, 100, "w", "tx")
	if err != nil {
		t.Fatal(err)
	}
	// Backdate the open past the hold limit.
	l.mu.Lock()
	l.active[testMint].OpenedAt = p.OpenedAt.Add(-31 * time.Minute)
	l.mu.Unlock()

	var got Status
	m.SetOnClose(func(p *Position) { got = p.Status })
	m.Cycle()

	if seller.calls != 1 {
		t.Fatalf("sell calls = %d, want 1", seller.calls)
	}
	if got != StatusClosedTimeout {
		t.Errorf("status = %s, want CLOSED_TIMEOUT", got)
	}
}

func TestPriceFailureSkipsCycle(t *testing.T) {
	seller := &fakeSeller{}
	prices := &fakePrices{err: errors.New("all providers down")}
	m, l := newTestMonitor(t, seller, prices, monitorConfig())

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	m.Cycle()

	if seller.calls != 0 {
		t.Errorf("sell calls = %d, want 0", seller.calls)
	}
	if l.Count() != 1 {
		t.Error("position must survive a failed price cycle")
	}
}

func TestDegradedPriceSkipsCycle(t *testing.T) {
	// A floor placeholder would read as a catastrophic drop; the
	// monitor must not stop-loss on it.
	seller := &fakeSeller{}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 0.000000001, Source: "floor", Degraded: true}}
	m, l := newTestMonitor(t, seller, prices, monitorConfig())

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	m.Cycle()

	if seller.calls != 0 {
		t.Errorf("sell calls = %d, want 0 on degraded price", seller.calls)
	}
}

func TestFailedSellMovesToErrorAndNeverRetries(t *testing.T) {
	seller := &fakeSeller{err: errors.New("no route")}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 2.0}}
	m, l := newTestMonitor(t, seller, prices, monitorConfig())

	if _, err := l.Open(testMint, "native", 1.0, 100, "w", "tx"); err != nil {
		t.Fatal(err)
	}

	var got Status
	m.SetOnClose(func(p *Position) { got = p.Status })

	m.Cycle()
	if seller.calls != 1 {
		t.Fatalf("sell calls = %d, want 1", seller.calls)
	}
	if got != StatusError {
		t.Errorf("status = %s, want ERROR", got)
	}

	// Further cycles see no ACTIVE position and never retry the sell.
	m.Cycle()
	m.Cycle()
	if seller.calls != 1 {
		t.Errorf("sell calls = %d after extra cycles, want 1", seller.calls)
	}
}

func TestMonitorStopExitsPromptly(t *testing.T) {
	seller := &fakeSeller{}
	prices := &fakePrices{quote: price.Quote{PriceSOL: 1.0}}
	l, _ := newTestLedger(t, 10)
	m := NewMonitor(l, seller, prices, monitorConfig, 10*time.Millisecond)

	m.Start()

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within one cycle")
	}
}

func TestScenarioSimulatedDoubleTriggersProfit(t *testing.T) {
	// Full flow: 0.01 SOL buy at 0.000001 fills 10000 tokens; price
	// doubles; TP at 75 closes the position with +100% pnl.
	prices := &fakePrices{quote: price.Quote{PriceSOL: 0.000001}}
	exec := newTestExecutor(simConfig(), nil, nil, nil, nil, prices)

	result, err := exec.Buy(context.Background(), testMint, 0.01, 500)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}

	l, _ := newTestLedger(t, 3)
	if _, err := l.Open(testMint, "pumpfun", result.PriceSOL, result.AmountFilled, "w", result.TxSig); err != nil {
		t.Fatal(err)
	}

	prices.quote.PriceSOL = 0.000002
	m := NewMonitor(l, exec, prices, func() config.TradingConfig { return simConfig() }, time.Hour)

	var closed *Position
	m.SetOnClose(func(p *Position) { closed = p })
	m.Cycle()

	if closed == nil {
		t.Fatal("position did not close")
	}
	if closed.Status != StatusClosedProfit {
		t.Errorf("status = %s, want CLOSED_PROFIT", closed.Status)
	}
	if diff := closed.PnlPercent - 100; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("pnl = %v, want 100", closed.PnlPercent)
	}
}
