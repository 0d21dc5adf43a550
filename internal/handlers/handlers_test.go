package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"predictionmarket/internal/auth"
	"predictionmarket/internal/oracle"
	"predictionmarket/internal/service"
	"predictionmarket/internal/storage"
)

const usdc = 1_000_000

var (
	owner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000A11cE")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000B0b")
	carol   = common.HexToAddress("0x000000000000000000000000000000000000CA01")
	btcFeed = common.HexToAddress("0x07DA0E54543a844a80ABE69c8A12F22B3aA59f9D")
)

func setupTestDB(t *testing.T) {
	if err := storage.InitDB(":memory:"); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
}

func cleanupTestDB(t *testing.T) {
	storage.CloseDB()
}

type testServer struct {
	handler http.Handler
	svc     *service.SettlementService
	oracle  *oracle.Static
	now     time.Time
}

// newTestServer wires the API over a fresh database with an owner, a BTC feed
// and alice and bob funded with 1000 USDC each. carol has no account.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	setupTestDB(t)
	t.Cleanup(func() { cleanupTestDB(t) })

	ctx := context.Background()
	ts := &testServer{
		oracle: oracle.NewStatic(),
		now:    time.Now().UTC().Truncate(time.Second),
	}
	ts.svc = service.NewSettlementService(service.DefaultConfig(), ts.oracle)
	ts.svc.SetClock(func() time.Time { return ts.now })
	ts.handler = NewAPI(ts.svc).Routes()

	if err := storage.SetLedgerOwner(ctx, storage.DB(), owner); err != nil {
		t.Fatalf("SetLedgerOwner failed: %v", err)
	}
	if err := ts.svc.AddPriceFeed(ctx, owner, "BTC", btcFeed); err != nil {
		t.Fatalf("AddPriceFeed failed: %v", err)
	}
	for _, a := range []common.Address{alice, bob} {
		if err := ts.svc.Credit(ctx, owner, a, 1_000*usdc); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
	}
	return ts
}

// do sends a request as who; a zero address sends it anonymously.
func (ts *testServer) do(t *testing.T, method, path string, body any, who common.Address) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != (common.Address{}) {
		req = req.WithContext(auth.ContextWithAddress(req.Context(), who))
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func (ts *testServer) createMarket(t *testing.T) MarketResponse {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/markets", service.CreateMarketInput{
		Asset:           "btc",
		TargetPrice:     "130000",
		IsAbove:         true,
		DurationSeconds: 3600,
		MinBet:          10 * usdc,
	}, alice)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var m MarketResponse
	decode(t, rr, &m)
	return m
}

func TestPingHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/ping", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(PingHandler)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var response PingResponse
	decode(t, rr, &response)
	if response.Status != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response.Status)
	}
}

func TestHandleMeUnauthorized(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/me", nil, common.Address{})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestHandleMeAuthorized(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/me", nil, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var response UserResponse
	decode(t, rr, &response)
	if response.Address != alice.Hex() {
		t.Errorf("Expected address %s, got %s", alice.Hex(), response.Address)
	}
	if response.Balance != 1_000*usdc {
		t.Errorf("Expected balance %d, got %d", 1_000*usdc, response.Balance)
	}
	if response.BalanceDisplay != "1000.00 USDC" {
		t.Errorf("Expected balance display '1000.00 USDC', got '%s'", response.BalanceDisplay)
	}
	if len(response.Positions) != 0 {
		t.Errorf("Expected no positions, got %d", len(response.Positions))
	}
}

func TestHandleMeOpensAccount(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/me", nil, carol)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	acc, err := storage.GetAccount(context.Background(), storage.DB(), carol)
	if err != nil || acc == nil {
		t.Fatalf("Expected account for carol, got %v, %v", acc, err)
	}
}

func TestCreateMarket(t *testing.T) {
	ts := newTestServer(t)

	m := ts.createMarket(t)
	if m.ID != 1 {
		t.Errorf("Expected market ID 1, got %d", m.ID)
	}
	if m.Asset != "BTC" || m.TargetPrice != "130000" || !m.IsAbove {
		t.Errorf("Unexpected market definition: %+v", m)
	}
	if m.Creator != alice.Hex() {
		t.Errorf("Expected creator %s, got %s", alice.Hex(), m.Creator)
	}
	if !m.Deadline.Equal(ts.now.Add(time.Hour)) {
		t.Errorf("Expected deadline %v, got %v", ts.now.Add(time.Hour), m.Deadline)
	}
	if m.Resolved || m.Outcome != "" || m.ResolvedAt != nil {
		t.Errorf("New market must be unresolved: %+v", m)
	}
}

func TestCreateMarketRejects(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       any
		who        common.Address
		wantStatus int
	}{
		{"anonymous", service.CreateMarketInput{Asset: "BTC", TargetPrice: "1", DurationSeconds: 3600, MinBet: 1}, common.Address{}, http.StatusUnauthorized},
		{"bad body", "not a market", alice, http.StatusBadRequest},
		{"unsupported asset", service.CreateMarketInput{Asset: "DOGE", TargetPrice: "1", DurationSeconds: 3600, MinBet: 1}, alice, http.StatusBadRequest},
		{"bad target", service.CreateMarketInput{Asset: "BTC", TargetPrice: "lots", DurationSeconds: 3600, MinBet: 1}, alice, http.StatusBadRequest},
		{"too short", service.CreateMarketInput{Asset: "BTC", TargetPrice: "1", DurationSeconds: 60, MinBet: 1}, alice, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/markets", tt.body, tt.who)
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestListMarkets(t *testing.T) {
	ts := newTestServer(t)
	ts.createMarket(t)
	ts.createMarket(t)

	rr := ts.do(t, http.MethodGet, "/api/markets?status=open", nil, common.Address{})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var markets []MarketResponse
	decode(t, rr, &markets)
	if len(markets) != 2 {
		t.Errorf("Expected 2 open markets, got %d", len(markets))
	}

	rr = ts.do(t, http.MethodGet, "/api/markets?status=resolved", nil, common.Address{})
	decode(t, rr, &markets)
	if len(markets) != 0 {
		t.Errorf("Expected no resolved markets, got %d", len(markets))
	}

	rr = ts.do(t, http.MethodGet, "/api/markets?creator="+bob.Hex(), nil, common.Address{})
	decode(t, rr, &markets)
	if len(markets) != 0 {
		t.Errorf("Expected no markets by bob, got %d", len(markets))
	}

	if rr := ts.do(t, http.MethodGet, "/api/markets?status=weird", nil, common.Address{}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for bad filter, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestGetMarket(t *testing.T) {
	ts := newTestServer(t)
	ts.createMarket(t)

	if rr := ts.do(t, http.MethodGet, "/api/markets/42", nil, common.Address{}); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/markets/abc", nil, common.Address{}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}

	var anon MarketDetailResponse
	decode(t, ts.do(t, http.MethodGet, "/api/markets/1", nil, common.Address{}), &anon)
	if anon.Position != nil {
		t.Error("Anonymous caller must not get a position")
	}

	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "yes", Amount: 100 * usdc}, alice)
	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "no", Amount: 50 * usdc}, bob)

	var detail MarketDetailResponse
	decode(t, ts.do(t, http.MethodGet, "/api/markets/1", nil, alice), &detail)
	if detail.Position == nil || detail.Position.YesAmount != 100*usdc {
		t.Fatalf("Expected alice's YES position, got %+v", detail.Position)
	}
	if detail.Position.PotentialWinnings != 149_500_000 {
		t.Errorf("Expected potential winnings 149500000, got %d", detail.Position.PotentialWinnings)
	}
	if detail.TotalPool != 150*usdc {
		t.Errorf("Expected total pool %d, got %d", 150*usdc, detail.TotalPool)
	}
	if detail.Odds.Yes+detail.Odds.No != 100 {
		t.Errorf("Expected odds to sum to 100, got %+v", detail.Odds)
	}
}

func TestHandleBets(t *testing.T) {
	ts := newTestServer(t)
	ts.createMarket(t)

	tests := []struct {
		name       string
		body       PlaceBetRequest
		who        common.Address
		wantStatus int
	}{
		{"anonymous", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 10 * usdc}, common.Address{}, http.StatusUnauthorized},
		{"bad side", PlaceBetRequest{MarketID: 1, Side: "MAYBE", Amount: 10 * usdc}, alice, http.StatusBadRequest},
		{"missing market", PlaceBetRequest{MarketID: 9, Side: "YES", Amount: 10 * usdc}, alice, http.StatusNotFound},
		{"below minimum", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: usdc}, alice, http.StatusBadRequest},
		{"no funds", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 10 * usdc}, carol, http.StatusPaymentRequired},
		{"ok", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 10 * usdc}, alice, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/bets", tt.body, tt.who)
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}

	// Betting closes at the deadline
	ts.now = ts.now.Add(2 * time.Hour)
	rr := ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "NO", Amount: 10 * usdc}, bob)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d after deadline, got %d", http.StatusConflict, rr.Code)
	}
}

func TestResolveAndClaim(t *testing.T) {
	ts := newTestServer(t)
	m := ts.createMarket(t)
	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: m.ID, Side: "YES", Amount: 100 * usdc}, alice)
	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: m.ID, Side: "NO", Amount: 50 * usdc}, bob)

	if rr := ts.do(t, http.MethodPost, "/api/markets/1/resolve", nil, bob); rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d before deadline, got %d", http.StatusConflict, rr.Code)
	}

	ts.now = m.Deadline.Add(time.Minute)
	if rr := ts.do(t, http.MethodPost, "/api/markets/1/resolve", nil, bob); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d without price, got %d", http.StatusServiceUnavailable, rr.Code)
	}

	ts.oracle.SetString("BTC", "135000", m.Deadline)
	rr := ts.do(t, http.MethodPost, "/api/markets/1/resolve", nil, bob)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var resolved MarketResponse
	decode(t, rr, &resolved)
	if !resolved.Resolved || resolved.Outcome != "YES" || resolved.SettlementPrice != "135000" {
		t.Errorf("Unexpected resolution: %+v", resolved)
	}

	if rr := ts.do(t, http.MethodPost, "/api/markets/1/resolve", nil, bob); rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d for second resolution, got %d", http.StatusConflict, rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/markets/1/claim", nil, bob); rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d for losing claim, got %d", http.StatusConflict, rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/markets/1/claim", nil, alice)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var claim service.ClaimResult
	decode(t, rr, &claim)
	if claim.Payout.Amount != 149_500_000 || claim.Payout.Fee != 500_000 {
		t.Errorf("Unexpected payout: %+v", claim.Payout)
	}
	if claim.Balance != 1_049_500_000 {
		t.Errorf("Expected balance 1049500000, got %d", claim.Balance)
	}

	if rr := ts.do(t, http.MethodPost, "/api/markets/1/claim", nil, alice); rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d for double claim, got %d", http.StatusConflict, rr.Code)
	}

	var ledger LedgerResponse
	decode(t, ts.do(t, http.MethodGet, "/api/admin/ledger", nil, common.Address{}), &ledger)
	if ledger.FeeBalance != 500_000 {
		t.Errorf("Expected fee balance 500000, got %d", ledger.FeeBalance)
	}
	if len(ledger.Feeds) != 1 || ledger.Feeds[0].Asset != "BTC" {
		t.Errorf("Expected the BTC feed, got %+v", ledger.Feeds)
	}
}

func TestAdminOwnerOnly(t *testing.T) {
	ts := newTestServer(t)

	paths := []struct {
		path string
		body any
	}{
		{"/api/admin/withdraw-fees", nil},
		{"/api/admin/withdraw-forfeited", nil},
		{"/api/admin/feeds", AddFeedRequest{Asset: "ETH", Address: btcFeed.Hex()}},
		{"/api/admin/credit", CreditRequest{Address: alice.Hex(), Amount: usdc}},
	}
	for _, p := range paths {
		if rr := ts.do(t, http.MethodPost, p.path, p.body, alice); rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected status %d, got %d", p.path, http.StatusForbidden, rr.Code)
		}
	}

	var w WithdrawResponse
	rr := ts.do(t, http.MethodPost, "/api/admin/withdraw-fees", nil, owner)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	decode(t, rr, &w)
	if w.Amount != 0 {
		t.Errorf("Expected empty withdrawal, got %d", w.Amount)
	}

	if rr := ts.do(t, http.MethodPost, "/api/admin/feeds", AddFeedRequest{Asset: "eth", Address: btcFeed.Hex()}, owner); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/admin/credit", CreditRequest{Address: carol.Hex(), Amount: 5 * usdc}, owner); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/admin/credit", CreditRequest{Address: carol.Hex(), Amount: 0}, owner); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for zero credit, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandlePrice(t *testing.T) {
	ts := newTestServer(t)

	if rr := ts.do(t, http.MethodGet, "/api/prices/btc", nil, common.Address{}); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}

	ts.oracle.SetString("BTC", "97000.5", ts.now)
	rr := ts.do(t, http.MethodGet, "/api/prices/btc", nil, common.Address{})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var p PriceResponse
	decode(t, rr, &p)
	if p.Asset != "BTC" || p.Price != "97000.5" {
		t.Errorf("Unexpected price: %+v", p)
	}
}

func TestLeaderboardAndActivity(t *testing.T) {
	ts := newTestServer(t)
	ts.createMarket(t)
	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 100 * usdc}, alice)

	var board []LeaderboardEntry
	decode(t, ts.do(t, http.MethodGet, "/api/leaderboard", nil, common.Address{}), &board)
	if len(board) < 2 {
		t.Fatalf("Expected at least 2 entries, got %d", len(board))
	}
	if board[0].Address != bob.Hex() || board[0].Rank != 1 {
		t.Errorf("Expected bob first, got %+v", board[0])
	}

	var mine []storage.Event
	decode(t, ts.do(t, http.MethodGet, "/api/activity", nil, alice), &mine)
	for _, e := range mine {
		if e.Address != alice {
			t.Errorf("Expected only alice's events, got %s", e.Address.Hex())
		}
	}
	if len(mine) == 0 || mine[0].Type != storage.EventBetPlaced {
		t.Errorf("Expected latest event to be the bet, got %+v", mine)
	}

	var all []storage.Event
	decode(t, ts.do(t, http.MethodGet, "/api/activity?scope=all", nil, alice), &all)
	if len(all) <= len(mine) {
		t.Errorf("Expected global feed to be larger than alice's, got %d vs %d", len(all), len(mine))
	}
}

func TestMarketOpenFollowsServiceClock(t *testing.T) {
	ts := newTestServer(t)
	m := ts.createMarket(t)
	if !m.Open {
		t.Fatal("Expected new market to be open")
	}

	// The wall clock is still before the deadline; the service clock is not.
	ts.now = m.Deadline.Add(time.Second)

	var detail MarketDetailResponse
	decode(t, ts.do(t, http.MethodGet, "/api/markets/1", nil, common.Address{}), &detail)
	if detail.Open {
		t.Error("Expected market to be reported closed after the service deadline")
	}

	var markets []MarketResponse
	decode(t, ts.do(t, http.MethodGet, "/api/markets", nil, common.Address{}), &markets)
	if len(markets) != 1 || markets[0].Open {
		t.Errorf("Expected one closed market in the list, got %+v", markets)
	}

	rr := ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 0}, bob)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status %d for zero bet on closed market, got %d", http.StatusConflict, rr.Code)
	}
}

func TestHandleGetOdds(t *testing.T) {
	ts := newTestServer(t)
	ts.createMarket(t)

	var odds service.Odds
	decode(t, ts.do(t, http.MethodGet, "/api/markets/1/odds", nil, common.Address{}), &odds)
	if odds.Yes != 50 || odds.No != 50 {
		t.Errorf("Expected 50/50 on empty pools, got %+v", odds)
	}

	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "YES", Amount: 75 * usdc}, alice)
	ts.do(t, http.MethodPost, "/api/bets", PlaceBetRequest{MarketID: 1, Side: "NO", Amount: 25 * usdc}, bob)

	decode(t, ts.do(t, http.MethodGet, "/api/markets/1/odds", nil, common.Address{}), &odds)
	if odds.Yes != 25 || odds.No != 75 {
		t.Errorf("Expected 25/75, got %+v", odds)
	}

	if rr := ts.do(t, http.MethodGet, "/api/markets/9/odds", nil, common.Address{}); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
