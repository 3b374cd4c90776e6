package detector

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/blockchain"
)

// Platform identifies where a detected token is believed to trade.
type Platform string

const (
	PlatformPumpfun  Platform = "pumpfun"
	PlatformMoonshot Platform = "moonshot"
	PlatformRaydium  Platform = "raydium"
	PlatformNative   Platform = "native"
)

// Candidate is one detected contract address with its platform label.
type Candidate struct {
	Address    string
	Platform   Platform
	Confidence float64
}

// Gates enables or disables platform classification. A candidate whose
// only label is a disabled platform is dropped.
type Gates struct {
	Pumpfun  bool
	Moonshot bool
	Raydium  bool
	Native   bool
}

// Stats counts detector activity. All fields are totals since start.
type Stats struct {
	MessagesProcessed int64
	AddressesFound    int64
	ByPlatform        map[Platform]int64
}

// Platform keyword lists, matched case-insensitively against the
// surrounding message text. Checked in priority order: an explicit
// platform mention beats the native fallback.
var pumpfunKeywords = []string{"pump.fun", "pumpfun", "buy on pf", "pf.fun"}
var moonshotKeywords = []string{"moonshot", "moonshot.watch", "dexscreener.com/moonshot"}
var raydiumKeywords = []string{"raydium", "dexscreener.com/solana", "dextools.io"}

// Detector extracts Solana contract addresses from free-form message
// text and classifies their launch platform.
type Detector struct {
	mu    sync.RWMutex
	gates Gates
	stats Stats
}

// New creates a detector with the given platform gates.
func New(gates Gates) *Detector {
	return &Detector{
		gates: gates,
		stats: Stats{ByPlatform: make(map[Platform]int64)},
	}
}

// UpdateGates swaps the platform gates, used on config hot-reload.
func (d *Detector) UpdateGates(gates Gates) {
	d.mu.Lock()
	d.gates = gates
	d.mu.Unlock()
}

// Detect scans text for base58 runs of plausible address length and
// classifies each occurrence. Pure with respect to detector state: it
// does not touch stats. Returns nil for empty input.
func (d *Detector) Detect(text string) []Candidate {
	if text == "" {
		return nil
	}

	d.mu.RLock()
	gates := d.gates
	d.mu.RUnlock()

	lower := strings.ToLower(text)
	platform, confidence, ok := classify(lower, gates)
	if !ok {
		return nil
	}

	var out []Candidate
	for _, addr := range extractAddresses(text) {
		out = append(out, Candidate{
			Address:    addr,
			Platform:   platform,
			Confidence: confidence,
		})
	}
	return out
}

// Process runs detection on one message and records stats. This is the
// single entry point the ingestion pipeline uses.
func (d *Detector) Process(text, source string) []Candidate {
	candidates := d.Detect(text)

	d.mu.Lock()
	d.stats.MessagesProcessed++
	d.stats.AddressesFound += int64(len(candidates))
	for _, c := range candidates {
		d.stats.ByPlatform[c.Platform]++
	}
	d.mu.Unlock()

	for _, c := range candidates {
		log.Info().
			Str("address", c.Address).
			Str("platform", string(c.Platform)).
			Float64("confidence", c.Confidence).
			Str("source", source).
			Msg("contract address detected")
	}
	return candidates
}

// Snapshot returns a copy of the current stats.
func (d *Detector) Snapshot() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byPlatform := make(map[Platform]int64, len(d.stats.ByPlatform))
	for k, v := range d.stats.ByPlatform {
		byPlatform[k] = v
	}
	return Stats{
		MessagesProcessed: d.stats.MessagesProcessed,
		AddressesFound:    d.stats.AddressesFound,
		ByPlatform:        byPlatform,
	}
}

// classify picks the highest-priority platform whose keywords appear in
// the lowercased text. With no keyword hit the native fallback applies
// at lower confidence, unless native detection is gated off.
func classify(lower string, gates Gates) (Platform, float64, bool) {
	if gates.Pumpfun && containsAny(lower, pumpfunKeywords) {
		return PlatformPumpfun, 0.8, true
	}
	if gates.Moonshot && containsAny(lower, moonshotKeywords) {
		return PlatformMoonshot, 0.8, true
	}
	if gates.Raydium && containsAny(lower, raydiumKeywords) {
		return PlatformRaydium, 0.8, true
	}
	if gates.Native {
		return PlatformNative, 0.5, true
	}
	return "", 0, false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// extractAddresses returns every word-boundary-delimited base58 run of
// 32 to 44 characters. Every occurrence is reported, duplicates
// included. No decode happens here: the trade path validates depth
// before any money moves.
func extractAddresses(text string) []string {
	var out []string
	n := len(text)
	i := 0
	for i < n {
		if !isBase58Byte(text[i]) {
			i++
			continue
		}
		start := i
		for i < n && isBase58Byte(text[i]) {
			i++
		}
		// Word boundary: runs glued to other alphanumerics are not
		// addresses (e.g. a base58 run inside a longer token).
		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		if i < n && isWordByte(text[i]) {
			continue
		}
		run := text[start:i]
		if len(run) < 32 || len(run) > 44 {
			continue
		}
		// Wrapped SOL shows up constantly in pair links and must never
		// trigger a trade.
		if run == blockchain.WSOLMint {
			continue
		}
		out = append(out, run)
	}
	return out
}

func isBase58Byte(b byte) bool {
	switch {
	case b >= '1' && b <= '9':
		return true
	case b >= 'A' && b <= 'Z':
		return b != 'I' && b != 'O'
	case b >= 'a' && b <= 'z':
		return b != 'l'
	}
	return false
}

// isWordByte covers the characters that would extend an identifier
// beyond a base58 run: the excluded base58 letters plus 0 and _.
func isWordByte(b byte) bool {
	return b == '0' || b == 'O' || b == 'I' || b == 'l' || b == '_' ||
		isBase58Byte(b)
}
