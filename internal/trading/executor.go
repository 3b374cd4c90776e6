package trading

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"solana-ca-sniper/internal/blockchain"
	"solana-ca-sniper/internal/config"
	"solana-ca-sniper/internal/jupiter"
	"solana-ca-sniper/internal/price"
)

// tokenDecimals is the decimal count assumed for traded tokens. Pump.fun
// mints and nearly all Solana memecoins use 6.
const tokenDecimals = 1e6

// TxResult is the outcome of a completed swap. For buys AmountFilled is
// tokens received; for sells it is SOL received. PriceSOL is always the
// effective per-token price.
type TxResult struct {
	PriceSOL     float64
	AmountFilled float64
	TxSig        string
}

// swapProvider is the quote/build surface of the Jupiter client.
type swapProvider interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.QuoteResponse, error)
	BuildSwapTransaction(ctx context.Context, quote *jupiter.QuoteResponse, userPubkey string) (string, error)
}

// broadcaster is the RPC surface the executor needs.
type broadcaster interface {
	SendTransaction(ctx context.Context, signedTx string, skipPreflight bool) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*blockchain.SignatureStatus, error)
	GetTokenAccountByMint(ctx context.Context, owner, mint string) (string, error)
	GetTokenAccountBalance(ctx context.Context, tokenAccount string) (*blockchain.TokenBalance, error)
}

type txSigner interface {
	SignSerializedTransaction(unsignedTxBase64 string) (string, error)
}

type balanceChecker interface {
	HasSufficientBalance(amountLamports, feeLamports uint64) bool
}

type priceSource interface {
	GetQuote(ctx context.Context, mint string) (price.Quote, error)
}

// Executor runs the buy/sell swap pipeline: validate, rate-limit,
// balance check, quote, build, sign, broadcast, confirm. Any stage
// failure aborts the swap; a submitted transaction is never retried.
type Executor struct {
	cfgFn         func() config.TradingConfig
	swap          swapProvider
	rpc           broadcaster
	signer        txSigner
	balance       balanceChecker
	prices        priceSource
	metrics       *Metrics
	walletAddress string

	mu          sync.Mutex
	recentMints map[string]time.Time

	// Confirmation polling knobs, shortened in tests.
	confirmPoll     time.Duration
	confirmAttempts int
}

// NewExecutor creates a swap executor.
func NewExecutor(cfgFn func() config.TradingConfig, swap swapProvider, rpc broadcaster, signer txSigner, balance balanceChecker, prices priceSource, walletAddress string, metrics *Metrics) *Executor {
	return &Executor{
		cfgFn:           cfgFn,
		swap:            swap,
		rpc:             rpc,
		signer:          signer,
		balance:         balance,
		prices:          prices,
		metrics:         metrics,
		walletAddress:   walletAddress,
		recentMints:     make(map[string]time.Time),
		confirmPoll:     2 * time.Second,
		confirmAttempts: 30,
	}
}

// Buy swaps SOL into the token.
func (e *Executor) Buy(ctx context.Context, mint string, amountSOL float64, slippageBps int) (*TxResult, error) {
	cfg := e.cfgFn()

	if err := blockchain.ValidateAddress(mint); err != nil {
		return nil, tradeErr(ErrInvalidAddress, mint, err)
	}
	if mint == blockchain.WSOLMint {
		return nil, tradeErr(ErrInvalidAddress, mint, fmt.Errorf("refusing to trade wrapped SOL"))
	}

	if err := e.checkCooldown(mint, cfg); err != nil {
		return nil, err
	}

	if !cfg.RealTradingEnabled {
		return e.simulatedBuy(ctx, mint, amountSOL)
	}

	amountLamports := uint64(amountSOL * 1e9)
	feeLamports := uint64(cfg.FeeBufferSOL * 1e9)
	if !e.balance.HasSufficientBalance(amountLamports, feeLamports) {
		return nil, tradeErr(ErrInsufficientFunds, mint,
			fmt.Errorf("need %.4f SOL plus %.4f fee buffer", amountSOL, cfg.FeeBufferSOL))
	}

	timer := NewSwapTimer()

	quote, err := e.swap.GetQuote(ctx, jupiter.SOLMint, mint, amountLamports, slippageBps)
	if err != nil {
		e.recordFailure(timer)
		return nil, tradeErr(ErrNoRoute, mint, err)
	}
	outUnits, err := quote.OutAmountUint()
	if err != nil || outUnits == 0 {
		e.recordFailure(timer)
		return nil, tradeErr(ErrNoRoute, mint, fmt.Errorf("empty quote output: %v", err))
	}
	timer.MarkQuoteDone()

	sig, err := e.executeSwap(ctx, mint, quote, timer)
	if err != nil {
		return nil, err
	}

	tokens := float64(outUnits) / tokenDecimals
	result := &TxResult{
		PriceSOL:     amountSOL / tokens,
		AmountFilled: tokens,
		TxSig:        sig,
	}

	log.Info().
		Str("mint", mint).
		Float64("amountSol", amountSOL).
		Float64("tokens", tokens).
		Float64("priceSol", result.PriceSOL).
		Str("txSig", sig).
		Msg("buy confirmed")
	return result, nil
}

// Sell swaps the token back into SOL.
func (e *Executor) Sell(ctx context.Context, mint string, amountToken float64) (*TxResult, error) {
	cfg := e.cfgFn()

	if err := blockchain.ValidateAddress(mint); err != nil {
		return nil, tradeErr(ErrInvalidAddress, mint, err)
	}
	if amountToken <= 0 {
		return nil, tradeErr(ErrInvalidAddress, mint, fmt.Errorf("non-positive sell amount %v", amountToken))
	}

	if !cfg.RealTradingEnabled {
		return e.simulatedSell(ctx, mint, amountToken)
	}

	// Size the sell from the live on-chain balance: the tracked amount
	// drifts from the actual fill by fees and slippage.
	if onChain, err := e.onChainTokens(ctx, mint); err != nil {
		log.Warn().Err(err).Str("mint", mint).Msg("token balance lookup failed, selling tracked amount")
	} else if onChain > 0 {
		amountToken = onChain
	}

	timer := NewSwapTimer()
	inUnits := uint64(amountToken * tokenDecimals)

	quote, err := e.swap.GetQuote(ctx, mint, jupiter.SOLMint, inUnits, cfg.SlippageBps)
	if err != nil {
		e.recordFailure(timer)
		return nil, tradeErr(ErrNoRoute, mint, err)
	}
	outLamports, err := quote.OutAmountUint()
	if err != nil || outLamports == 0 {
		e.recordFailure(timer)
		return nil, tradeErr(ErrNoRoute, mint, fmt.Errorf("empty quote output: %v", err))
	}
	timer.MarkQuoteDone()

	sig, err := e.executeSwap(ctx, mint, quote, timer)
	if err != nil {
		return nil, err
	}

	solOut := float64(outLamports) / 1e9
	result := &TxResult{
		PriceSOL:     solOut / amountToken,
		AmountFilled: solOut,
		TxSig:        sig,
	}

	log.Info().
		Str("mint", mint).
		Float64("tokens", amountToken).
		Float64("solOut", solOut).
		Str("txSig", sig).
		Msg("sell confirmed")
	return result, nil
}

// onChainTokens returns the wallet's current holdings of the mint in
// whole tokens, zero when no token account exists.
func (e *Executor) onChainTokens(ctx context.Context, mint string) (float64, error) {
	account, err := e.rpc.GetTokenAccountByMint(ctx, e.walletAddress, mint)
	if err != nil {
		return 0, err
	}
	if account == "" {
		return 0, nil
	}
	bal, err := e.rpc.GetTokenAccountBalance(ctx, account)
	if err != nil {
		return 0, err
	}
	return float64(bal.Amount) / tokenDecimals, nil
}

// executeSwap runs the shared build/sign/broadcast/confirm tail.
func (e *Executor) executeSwap(ctx context.Context, mint string, quote *jupiter.QuoteResponse, timer *SwapTimer) (string, error) {
	unsignedTx, err := e.swap.BuildSwapTransaction(ctx, quote, e.walletAddress)
	if err != nil {
		e.recordFailure(timer)
		return "", tradeErr(ErrBuildFailed, mint, err)
	}
	timer.MarkBuildDone()

	signedTx, err := e.signer.SignSerializedTransaction(unsignedTx)
	if err != nil {
		e.recordFailure(timer)
		return "", tradeErr(ErrBuildFailed, mint, err)
	}
	timer.MarkSignDone()

	sig, err := e.rpc.SendTransaction(ctx, signedTx, true)
	if err != nil {
		e.recordFailure(timer)
		return "", tradeErr(ErrBroadcastFailed, mint, err)
	}
	timer.MarkSendDone()

	if err := e.awaitConfirmation(ctx, sig); err != nil {
		e.recordFailure(timer)
		if te, ok := err.(*TradeError); ok {
			te.Mint = mint
		}
		return "", err
	}
	timer.MarkConfirmDone()

	quoteMs, buildMs, signMs, sendMs, confirmMs := timer.Breakdown()
	e.metrics.RecordSwap(true, quoteMs, buildMs, signMs, sendMs, confirmMs)
	return sig, nil
}

// awaitConfirmation polls signature status until the transaction lands,
// fails on-chain, or the attempt budget runs out.
func (e *Executor) awaitConfirmation(ctx context.Context, sig string) error {
	ticker := time.NewTicker(e.confirmPoll)
	defer ticker.Stop()

	for i := 0; i < e.confirmAttempts; i++ {
		select {
		case <-ctx.Done():
			return tradeErr(ErrConfirmationTimeout, "", ctx.Err())
		case <-ticker.C:
		}

		status, err := e.rpc.GetSignatureStatus(ctx, sig)
		if err != nil {
			log.Warn().Err(err).Str("sig", sig).Msg("status poll failed")
			continue
		}
		if status == nil {
			continue
		}
		if status.Err != nil {
			return tradeErr(ErrTransactionRejected, "", fmt.Errorf("on-chain error: %v", status.Err))
		}
		if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
			return nil
		}
	}
	return tradeErr(ErrConfirmationTimeout, "", fmt.Errorf("no confirmation after %d polls", e.confirmAttempts))
}

func (e *Executor) checkCooldown(mint string, cfg config.TradingConfig) error {
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.recentMints[mint]; ok && time.Since(last) < cooldown {
		return tradeErr(ErrRateLimited, mint,
			fmt.Errorf("bought %s ago, cooldown %s", time.Since(last).Round(time.Second), cooldown))
	}
	e.recentMints[mint] = time.Now()

	// Occasional sweep so the map does not grow forever.
	if len(e.recentMints) > 1000 {
		cutoff := time.Now().Add(-cooldown)
		for m, ts := range e.recentMints {
			if ts.Before(cutoff) {
				delete(e.recentMints, m)
			}
		}
	}
	return nil
}

// simulatedBuy fills at the aggregator price without touching the chain.
func (e *Executor) simulatedBuy(ctx context.Context, mint string, amountSOL float64) (*TxResult, error) {
	q, err := e.prices.GetQuote(ctx, mint)
	if err != nil {
		return nil, tradeErr(ErrNoPriceAvailable, mint, err)
	}
	if q.Degraded {
		return nil, tradeErr(ErrNoPriceAvailable, mint, fmt.Errorf("only degraded floor price available"))
	}

	result := &TxResult{
		PriceSOL:     q.PriceSOL,
		AmountFilled: amountSOL / q.PriceSOL,
		TxSig:        simTxRef(),
	}

	log.Info().
		Str("mint", mint).
		Float64("amountSol", amountSOL).
		Float64("tokens", result.AmountFilled).
		Str("txRef", result.TxSig).
		Msg("simulated buy filled")
	return result, nil
}

// simulatedSell fills at the aggregator price. A degraded quote is still
// accepted here: exits must not be blocked by provider outages.
func (e *Executor) simulatedSell(ctx context.Context, mint string, amountToken float64) (*TxResult, error) {
	q, err := e.prices.GetQuote(ctx, mint)
	if err != nil {
		return nil, tradeErr(ErrNoPriceAvailable, mint, err)
	}

	result := &TxResult{
		PriceSOL:     q.PriceSOL,
		AmountFilled: amountToken * q.PriceSOL,
		TxSig:        simTxRef(),
	}

	log.Info().
		Str("mint", mint).
		Float64("tokens", amountToken).
		Float64("solOut", result.AmountFilled).
		Str("txRef", result.TxSig).
		Msg("simulated sell filled")
	return result, nil
}

func (e *Executor) recordFailure(timer *SwapTimer) {
	quoteMs, buildMs, signMs, sendMs, confirmMs := timer.Breakdown()
	e.metrics.RecordSwap(false, quoteMs, buildMs, signMs, sendMs, confirmMs)
}

func simTxRef() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return "SIM-" + strings.ToUpper(hex.EncodeToString(buf))
}
