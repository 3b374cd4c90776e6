package trading

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/storage"
)

// Status is the lifecycle state of a position. Every state except
// ACTIVE is terminal.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusClosedProfit  Status = "CLOSED_PROFIT"
	StatusClosedLoss    Status = "CLOSED_LOSS"
	StatusClosedTimeout Status = "CLOSED_TIMEOUT"
	StatusError         Status = "ERROR"
)

// ErrNotActive is returned when closing a position that has already
// reached a terminal state.
var ErrNotActive = errors.New("position not active")

// Position is one tracked trade.
type Position struct {
	ID            int64
	TokenAddress  string
	Platform      string
	BuyPrice      float64
	AmountBought  float64
	WalletAccount string
	BuyTxRef      string
	SellPrice     float64
	SellTxRef     string
	Status        Status
	PnlPercent    float64
	OpenedAt      time.Time
	ClosedAt      time.Time
}

type positionStore interface {
	InsertTrade(t *storage.Trade) (int64, error)
	UpdateTradeClose(id int64, sellPrice float64, sellTxRef, status string, pnlPercent float64, closedAt int64) error
	GetActiveTrades() ([]*storage.Trade, error)
}

// Ledger owns all ACTIVE positions. Open enforces the position limit
// and the one-position-per-token rule under a single lock; Close is
// idempotent. Every transition is persisted before it takes effect.
type Ledger struct {
	mu      sync.Mutex
	store   positionStore
	maxOpen func() int
	active  map[string]*Position // keyed by token address
}

// NewLedger creates a position ledger.
func NewLedger(store positionStore, maxOpen func() int) *Ledger {
	return &Ledger{
		store:   store,
		maxOpen: maxOpen,
		active:  make(map[string]*Position),
	}
}

// WarmStart reloads ACTIVE positions from storage after a restart.
func (l *Ledger) WarmStart() error {
	trades, err := l.store.GetActiveTrades()
	if err != nil {
		return tradeErr(ErrPersistence, "", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range trades {
		l.active[t.TokenAddress] = &Position{
			ID:            t.ID,
			TokenAddress:  t.TokenAddress,
			Platform:      t.Platform,
			BuyPrice:      t.BuyPrice,
			AmountBought:  t.AmountBought,
			WalletAccount: t.WalletAccount,
			BuyTxRef:      t.BuyTxRef,
			Status:        StatusActive,
			OpenedAt:      time.Unix(t.OpenedAt, 0),
		}
	}

	if len(l.active) > 0 {
		log.Info().Int("count", len(l.active)).Msg("restored active positions")
	}
	return nil
}

// Open admits a new position. The limit check, duplicate check and
// persist all happen before the position becomes visible.
func (l *Ledger) Open(tokenAddress, platform string, buyPrice, amountBought float64, walletAccount, buyTxRef string) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if max := l.maxOpen(); max > 0 && len(l.active) >= max {
		return nil, tradeErr(ErrPositionLimitExceeded, tokenAddress,
			fmt.Errorf("%d positions open, limit %d", len(l.active), max))
	}
	if _, exists := l.active[tokenAddress]; exists {
		return nil, tradeErr(ErrDuplicateExposure, tokenAddress,
			fmt.Errorf("position already active"))
	}

	now := time.Now()
	id, err := l.store.InsertTrade(&storage.Trade{
		TokenAddress:  tokenAddress,
		Platform:      platform,
		BuyPrice:      buyPrice,
		AmountBought:  amountBought,
		WalletAccount: walletAccount,
		BuyTxRef:      buyTxRef,
		Status:        string(StatusActive),
		OpenedAt:      now.Unix(),
	})
	if err != nil {
		return nil, tradeErr(ErrPersistence, tokenAddress, err)
	}

	p := &Position{
		ID:            id,
		TokenAddress:  tokenAddress,
		Platform:      platform,
		BuyPrice:      buyPrice,
		AmountBought:  amountBought,
		WalletAccount: walletAccount,
		BuyTxRef:      buyTxRef,
		Status:        StatusActive,
		OpenedAt:      now,
	}
	l.active[tokenAddress] = p

	log.Info().
		Str("token", tokenAddress).
		Str("platform", platform).
		Float64("buyPrice", buyPrice).
		Float64("amount", amountBought).
		Int64("id", id).
		Msg("position opened")
	return p, nil
}

// Close transitions a position to a terminal state. The second close of
// the same position returns ErrNotActive. The transition is attempted
// in storage first; if storage fails the in-memory state still advances
// (it remains authoritative) and a PersistenceError is returned
// alongside the closed position.
func (l *Ledger) Close(tokenAddress string, status Status, sellPrice float64, sellTxRef string) (*Position, error) {
	if status == StatusActive {
		return nil, fmt.Errorf("cannot close to ACTIVE")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.active[tokenAddress]
	if !ok {
		return nil, ErrNotActive
	}

	var pnl float64
	if status != StatusError && p.BuyPrice > 0 {
		pnl = (sellPrice - p.BuyPrice) / p.BuyPrice * 100
	}
	now := time.Now()

	persistErr := l.store.UpdateTradeClose(p.ID, sellPrice, sellTxRef, string(status), pnl, now.Unix())
	if persistErr != nil {
		log.Error().
			Err(persistErr).
			Str("token", tokenAddress).
			Str("status", string(status)).
			Msg("failed to persist position close, in-memory state kept authoritative")
	}

	p.Status = status
	p.SellPrice = sellPrice
	p.SellTxRef = sellTxRef
	p.PnlPercent = pnl
	p.ClosedAt = now
	delete(l.active, tokenAddress)

	log.Info().
		Str("token", tokenAddress).
		Str("status", string(status)).
		Float64("pnlPercent", pnl).
		Msg("position closed")

	if persistErr != nil {
		return p, tradeErr(ErrPersistence, tokenAddress, persistErr)
	}
	return p, nil
}

// Get returns the ACTIVE position for a token, or nil.
func (l *Ledger) Get(tokenAddress string) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.active[tokenAddress]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Active returns a snapshot of all ACTIVE positions.
func (l *Ledger) Active() []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Position, 0, len(l.active))
	for _, p := range l.active {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Count returns the number of ACTIVE positions.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
