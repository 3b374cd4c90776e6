package trading

import (
	"errors"
	"fmt"
	"testing"
)

func TestTradeErrorMatching(t *testing.T) {
	base := tradeErr(ErrNoRoute, "mint1", fmt.Errorf("no pools"))
	wrapped := fmt.Errorf("buy failed: %w", base)

	if !errors.Is(wrapped, &TradeError{Kind: ErrNoRoute}) {
		t.Error("errors.Is should match on kind alone")
	}
	if !errors.Is(wrapped, &TradeError{Kind: ErrNoRoute, Mint: "mint1"}) {
		t.Error("errors.Is should match kind and mint")
	}
	if errors.Is(wrapped, &TradeError{Kind: ErrNoRoute, Mint: "other"}) {
		t.Error("errors.Is should not match a different mint")
	}
	if errors.Is(wrapped, &TradeError{Kind: ErrBuildFailed}) {
		t.Error("errors.Is should not match a different kind")
	}

	var te *TradeError
	if !errors.As(wrapped, &te) {
		t.Fatal("errors.As should find the TradeError")
	}
	if te.Kind != ErrNoRoute || te.Mint != "mint1" {
		t.Errorf("unexpected TradeError %+v", te)
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", tradeErr(ErrRateLimited, "m", nil))
	if got := KindOf(err); got != ErrRateLimited {
		t.Errorf("KindOf = %s, want RateLimited", got)
	}
	if got := KindOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("KindOf(plain) = %s, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %s, want empty", got)
	}
}
