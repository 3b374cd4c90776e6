package jupiter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func TestGetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("inputMint") != SOLMint {
			t.Errorf("inputMint = %s, want SOL", q.Get("inputMint"))
		}
		if q.Get("amount") != "10000000" {
			t.Errorf("amount = %s, want 10000000", q.Get("amount"))
		}
		if q.Get("slippageBps") != "500" {
			t.Errorf("slippageBps = %s, want 500", q.Get("slippageBps"))
		}

		json.NewEncoder(w).Encode(QuoteResponse{
			InputMint:  SOLMint,
			InAmount:   "10000000",
			OutputMint: testMint,
			OutAmount:  "123456789",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	quote, err := c.GetQuote(context.Background(), SOLMint, testMint, 10_000_000, 500)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}

	out, err := quote.OutAmountUint()
	if err != nil {
		t.Fatalf("OutAmountUint: %v", err)
	}
	if out != 123456789 {
		t.Errorf("outAmount = %d, want 123456789", out)
	}
}

func TestGetQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Could not find any route"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	if _, err := c.GetQuote(context.Background(), SOLMint, testMint, 1, 500); err == nil {
		t.Fatal("expected error for no-route response")
	}
}

func TestBuildSwapTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			QuoteResponse *QuoteResponse `json:"quoteResponse"`
			UserPublicKey string         `json:"userPublicKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode swap request: %v", err)
		}
		if body.UserPublicKey != "userpubkey" {
			t.Errorf("userPublicKey = %s", body.UserPublicKey)
		}
		if body.QuoteResponse == nil || body.QuoteResponse.OutAmount != "42" {
			t.Error("quote not forwarded")
		}

		json.NewEncoder(w).Encode(SwapResponse{
			SwapTransaction:      "c2lnbmVkdHg=",
			LastValidBlockHeight: 100,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	tx, err := c.BuildSwapTransaction(context.Background(), &QuoteResponse{OutAmount: "42"}, "userpubkey")
	if err != nil {
		t.Fatalf("BuildSwapTransaction: %v", err)
	}
	if tx != "c2lnbmVkdHg=" {
		t.Errorf("tx = %s", tx)
	}
}

func TestBuildSwapTransactionEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SwapResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	if _, err := c.BuildSwapTransaction(context.Background(), &QuoteResponse{}, "pk"); err == nil {
		t.Fatal("expected error for missing transaction")
	}
}

func TestClientPoolRoundRobin(t *testing.T) {
	pool := NewHTTPClientPool(3, time.Second)

	seen := map[*http.Client]bool{}
	for i := 0; i < 3; i++ {
		seen[pool.Get()] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct clients, got %d", len(seen))
	}
}
