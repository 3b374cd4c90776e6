package trading

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks swap pipeline latency
type Metrics struct {
	// Latency samples (in milliseconds)
	samples   []int64
	sampleIdx int
	mu        sync.Mutex

	// Counters
	totalSwaps   atomic.Int64
	successSwaps atomic.Int64
	failedSwaps  atomic.Int64

	// Stage breakdown (last swap)
	lastQuoteMs   atomic.Int64
	lastBuildMs   atomic.Int64
	lastSignMs    atomic.Int64
	lastSendMs    atomic.Int64
	lastConfirmMs atomic.Int64
	lastTotalMs   atomic.Int64
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		samples: make([]int64, 100), // Keep last 100 samples
	}
}

// RecordSwap records one swap with its per-stage breakdown
func (m *Metrics) RecordSwap(success bool, quoteMs, buildMs, signMs, sendMs, confirmMs int64) {
	totalMs := quoteMs + buildMs + signMs + sendMs + confirmMs

	m.mu.Lock()
	m.samples[m.sampleIdx%len(m.samples)] = totalMs
	m.sampleIdx++
	m.mu.Unlock()

	m.totalSwaps.Add(1)
	if success {
		m.successSwaps.Add(1)
	} else {
		m.failedSwaps.Add(1)
	}

	m.lastQuoteMs.Store(quoteMs)
	m.lastBuildMs.Store(buildMs)
	m.lastSignMs.Store(signMs)
	m.lastSendMs.Store(sendMs)
	m.lastConfirmMs.Store(confirmMs)
	m.lastTotalMs.Store(totalMs)
}

// P50 returns the 50th percentile latency
func (m *Metrics) P50() int64 {
	return m.percentile(50)
}

// P95 returns the 95th percentile latency
func (m *Metrics) P95() int64 {
	return m.percentile(95)
}

// P99 returns the 99th percentile latency
func (m *Metrics) P99() int64 {
	return m.percentile(99)
}

// Avg returns the average latency
func (m *Metrics) Avg() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	if count == 0 {
		return 0
	}

	var sum int64
	for i := 0; i < count; i++ {
		sum += m.samples[i]
	}
	return sum / int64(count)
}

func (m *Metrics) percentile(p int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.sampleIdx
	if count > len(m.samples) {
		count = len(m.samples)
	}
	if count == 0 {
		return 0
	}

	sorted := make([]int64, count)
	copy(sorted, m.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (p * count) / 100
	if idx >= count {
		idx = count - 1
	}
	return sorted[idx]
}

// LastBreakdown returns the last swap's per-stage latency breakdown
func (m *Metrics) LastBreakdown() (quote, build, sign, send, confirm, total int64) {
	return m.lastQuoteMs.Load(),
		m.lastBuildMs.Load(),
		m.lastSignMs.Load(),
		m.lastSendMs.Load(),
		m.lastConfirmMs.Load(),
		m.lastTotalMs.Load()
}

// Stats returns aggregate stats
func (m *Metrics) Stats() (total, success, failed int64, successRate float64) {
	total = m.totalSwaps.Load()
	success = m.successSwaps.Load()
	failed = m.failedSwaps.Load()
	if total > 0 {
		successRate = float64(success) / float64(total) * 100
	}
	return
}

// SwapTimer times individual pipeline stages
type SwapTimer struct {
	start      time.Time
	quoteEnd   time.Time
	buildEnd   time.Time
	signEnd    time.Time
	sendEnd    time.Time
	confirmEnd time.Time
}

// NewSwapTimer starts timing a swap
func NewSwapTimer() *SwapTimer {
	return &SwapTimer{start: time.Now()}
}

// MarkQuoteDone marks the quote stage complete
func (t *SwapTimer) MarkQuoteDone() { t.quoteEnd = time.Now() }

// MarkBuildDone marks transaction build complete
func (t *SwapTimer) MarkBuildDone() { t.buildEnd = time.Now() }

// MarkSignDone marks local signing complete
func (t *SwapTimer) MarkSignDone() { t.signEnd = time.Now() }

// MarkSendDone marks broadcast complete
func (t *SwapTimer) MarkSendDone() { t.sendEnd = time.Now() }

// MarkConfirmDone marks confirmation complete
func (t *SwapTimer) MarkConfirmDone() { t.confirmEnd = time.Now() }

// Breakdown returns milliseconds for each stage
func (t *SwapTimer) Breakdown() (quote, build, sign, send, confirm int64) {
	prev := t.start
	if !t.quoteEnd.IsZero() {
		quote = t.quoteEnd.Sub(prev).Milliseconds()
		prev = t.quoteEnd
	}
	if !t.buildEnd.IsZero() {
		build = t.buildEnd.Sub(prev).Milliseconds()
		prev = t.buildEnd
	}
	if !t.signEnd.IsZero() {
		sign = t.signEnd.Sub(prev).Milliseconds()
		prev = t.signEnd
	}
	if !t.sendEnd.IsZero() {
		send = t.sendEnd.Sub(prev).Milliseconds()
		prev = t.sendEnd
	}
	if !t.confirmEnd.IsZero() {
		confirm = t.confirmEnd.Sub(prev).Milliseconds()
	}
	return
}

// TotalMs returns total elapsed time in milliseconds
func (t *SwapTimer) TotalMs() int64 {
	return time.Since(t.start).Milliseconds()
}
