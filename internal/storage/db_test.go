package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTradeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}

	trade := &Trade{
		TokenAddress:  testMint,
		Platform:      "pumpfun",
		BuyPrice:      0.000001,
		AmountBought:  10000,
		WalletAccount: "wallet1",
		BuyTxRef:      "SIM-abc",
		Status:        "ACTIVE",
		OpenedAt:      Now(),
	}
	id, err := db.InsertTrade(trade)
	if err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}
	db.Close()

	// Simulated restart: reopen the same file and reload active trades.
	db2, err := NewDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	active, err := db2.GetActiveTrades()
	if err != nil {
		t.Fatalf("GetActiveTrades: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	got := active[0]
	if got.ID != id || got.TokenAddress != testMint || got.Platform != "pumpfun" ||
		got.BuyPrice != 0.000001 || got.AmountBought != 10000 ||
		got.BuyTxRef != "SIM-abc" || got.Status != "ACTIVE" {
		t.Errorf("reloaded trade differs: %+v", got)
	}
}

func TestUpdateTradeClose(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertTrade(&Trade{
		TokenAddress: testMint,
		Platform:     "native",
		BuyPrice:     0.000001,
		AmountBought: 10000,
		Status:       "ACTIVE",
		OpenedAt:     Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateTradeClose(id, 0.000002, "SIM-sell", "CLOSED_PROFIT", 100, Now()); err != nil {
		t.Fatalf("UpdateTradeClose: %v", err)
	}

	active, err := db.GetActiveTrades()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("closed trade still active: %v", active)
	}

	recent, err := db.GetRecentTrades(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d, want 1", len(recent))
	}
	if recent[0].Status != "CLOSED_PROFIT" || recent[0].SellPrice != 0.000002 ||
		recent[0].SellTxRef != "SIM-sell" || recent[0].PnlPercent != 100 {
		t.Errorf("close fields not persisted: %+v", recent[0])
	}
}

func TestErrorCloseLeavesSellColumnsNull(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertTrade(&Trade{
		TokenAddress: testMint, Platform: "native", Status: "ACTIVE", OpenedAt: Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateTradeClose(id, 0, "", "ERROR", 0, Now()); err != nil {
		t.Fatalf("UpdateTradeClose: %v", err)
	}

	var sellPrice, pnl sql.NullFloat64
	var sellTxRef sql.NullString
	err = db.db.QueryRow(
		"SELECT sell_price, sell_tx_ref, pnl_percent FROM trades WHERE id = ?", id).
		Scan(&sellPrice, &sellTxRef, &pnl)
	if err != nil {
		t.Fatal(err)
	}
	if sellPrice.Valid || sellTxRef.Valid || pnl.Valid {
		t.Errorf("ERROR close should leave sell columns NULL, got price=%v txRef=%v pnl=%v",
			sellPrice, sellTxRef, pnl)
	}
}

func TestGetActiveTradeByToken(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.InsertTrade(&Trade{
		TokenAddress: testMint, Platform: "native", Status: "ACTIVE", OpenedAt: Now(),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetActiveTradeByToken(testMint)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected active trade")
	}

	none, err := db.GetActiveTradeByToken("8f2zKNBNH7M4vS9cknsfgzBWZU6vKhp3TvNVJdjLpump")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown token, got %+v", none)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertSignal(&Signal{
		TokenAddress: testMint,
		Platform:     "pumpfun",
		SourceKind:   "message",
		SourceID:     "chat:42",
		Text:         "ape in now",
		CreatedAt:    Now(),
	})
	if err != nil {
		t.Fatalf("InsertSignal: %v", err)
	}

	if err := db.MarkSignalProcessed(id); err != nil {
		t.Fatalf("MarkSignalProcessed: %v", err)
	}

	signals, err := db.GetRecentSignals(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	s := signals[0]
	if s.TokenAddress != testMint || s.SourceKind != "message" || !s.Processed {
		t.Errorf("signal round trip differs: %+v", s)
	}
}

func TestMigrationAddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// Seed a pre-migration database with the original narrow schema.
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = raw.Exec(`
		CREATE TABLE trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token_address TEXT NOT NULL,
			buy_price REAL NOT NULL,
			amount_bought REAL NOT NULL,
			buy_tx_ref TEXT NOT NULL DEFAULT '',
			opened_at INTEGER NOT NULL
		);
		INSERT INTO trades (token_address, buy_price, amount_bought, buy_tx_ref, opened_at)
		VALUES ('` + testMint + `', 0.001, 500, 'tx1', 1700000000);
	`)
	if err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB on old schema: %v", err)
	}
	defer db.Close()

	// The pre-existing row survives and picks up defaulted columns.
	active, err := db.GetActiveTrades()
	if err != nil {
		t.Fatalf("GetActiveTrades after migration: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].BuyPrice != 0.001 || active[0].Platform != "native" || active[0].Status != "ACTIVE" {
		t.Errorf("migrated row unexpected: %+v", active[0])
	}

	// Migration is idempotent across reopen.
	db.Close()
	if _, err := NewDB(path); err != nil {
		t.Fatalf("second open: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)

	// Empty database returns zeroes, not an error.
	s, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats empty: %v", err)
	}
	if s.TotalTrades != 0 || s.WinRate != 0 {
		t.Errorf("empty stats = %+v", s)
	}

	insert := func(status string, pnl float64) {
		id, err := db.InsertTrade(&Trade{
			TokenAddress: testMint, Platform: "native", Status: "ACTIVE", OpenedAt: Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if status != "ACTIVE" {
			if err := db.UpdateTradeClose(id, 0, "", status, pnl, Now()); err != nil {
				t.Fatal(err)
			}
		}
	}

	insert("CLOSED_PROFIT", 80)
	insert("CLOSED_LOSS", -40)
	insert("CLOSED_TIMEOUT", 10)
	insert("ERROR", 0)
	insert("ACTIVE", 0)

	s, err = db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.TotalTrades != 5 || s.ActiveTrades != 1 || s.ClosedProfit != 1 ||
		s.ClosedLoss != 1 || s.ClosedTimeout != 1 || s.Errored != 1 {
		t.Errorf("counts = %+v", s)
	}
	// 2 of 3 closed trades ended positive.
	if diff := s.WinRate - 200.0/3.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("win rate = %v", s.WinRate)
	}
	if diff := s.AvgPnlPercent - 50.0/3.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("avg pnl = %v", s.AvgPnlPercent)
	}
}
