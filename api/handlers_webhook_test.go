package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvbridge/config"
	"tvbridge/exchange"
	"tvbridge/notifier"
)

// fakeGateway 内存版交易所: 余额在订单提交成功后扣减，
// 用来验证并发信号不会重复花同一笔钱
type fakeGateway struct {
	mu       sync.Mutex
	filters  *exchange.SymbolFilterSet
	balance  float64 // 计价货币余额
	price    float64
	position *exchange.Position

	submitErr     error
	submitted     []exchange.OrderRequest
	leverageCalls []int
}

func (f *fakeGateway) SymbolFilters(ctx context.Context, symbol string, market exchange.MarketType) (*exchange.SymbolFilterSet, error) {
	return f.filters, nil
}

func (f *fakeGateway) AccountBalances(ctx context.Context, market exchange.MarketType) (exchange.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.AccountSnapshot{f.filters.QuoteAsset: f.balance}, nil
}

func (f *fakeGateway) OpenPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

func (f *fakeGateway) Price(ctx context.Context, symbol string, market exchange.MarketType) (float64, error) {
	return f.price, nil
}

func (f *fakeGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls = append(f.leverageCalls, leverage)
	return nil
}

func (f *fakeGateway) SubmitMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}

	// 现货买单扣减计价货币余额
	if req.Market == exchange.MarketSpot && req.Side == exchange.SideBuy {
		qty, err := strconv.ParseFloat(req.Quantity, 64)
		if err != nil {
			return nil, err
		}
		notional := qty * f.price
		if notional > f.balance {
			return nil, errors.New("insufficient balance")
		}
		f.balance -= notional
	}

	f.submitted = append(f.submitted, req)
	return &exchange.OrderReceipt{
		OrderID:     int64(len(f.submitted)),
		Symbol:      req.Symbol,
		Status:      "FILLED",
		ExecutedQty: req.Quantity,
	}, nil
}

func spotFakeGateway() *fakeGateway {
	return &fakeGateway{
		filters: &exchange.SymbolFilterSet{
			Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
			MinQty: 0.00001, StepSize: 0.00001, MinNotional: 10,
		},
		balance: 1000,
		price:   50000,
	}
}

func futuresFakeGateway() *fakeGateway {
	return &fakeGateway{
		filters: &exchange.SymbolFilterSet{
			Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT",
			MinQty: 0.001, MaxQty: 10000, StepSize: 0.001,
			MinPrice: 0.01, MaxPrice: 1000000, TickSize: 0.01, MinNotional: 5,
		},
		balance: 1000,
		price:   3000,
	}
}

// newTestServer 建一套带临时数据库和假网关的服务器
func newTestServer(t *testing.T, gw *fakeGateway) (*Server, *config.Database) {
	t.Helper()
	db, err := config.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	factory := func(apiKey, secretKey string, testnet bool) exchange.Gateway { return gw }
	return NewServer(db, notifier.New("", 0), factory, "0"), db
}

func seedStrategy(t *testing.T, db *config.Database, s *config.Strategy) *config.Strategy {
	t.Helper()
	require.NoError(t, db.CreateStrategy(s))
	require.NoError(t, db.UpsertExchange(&config.ExchangeAccount{
		UserID: s.UserID, Exchange: "binance",
		APIKey: "k", SecretKey: "s",
	}))
	return s
}

func postWebhook(s *Server, body map[string]interface{}) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestWebhookSpotBuyExecuted(t *testing.T) {
	gw := spotFakeGateway()
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "BTC 定投", TradingPair: "BTC/USDT",
		MarketType: "spot", RiskType: "fixed_amount", RiskValue: 100,
		IsActive: true, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.NotEmpty(t, resp["log_summary"])

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, "0.00200", gw.submitted[0].Quantity)
	assert.Equal(t, exchange.SideBuy, gw.submitted[0].Side)
	assert.False(t, gw.submitted[0].ReduceOnly)

	logs, err := db.ListSignalLogs("u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "executed", logs[0].Status)
	assert.Equal(t, "0.00200", logs[0].Quantity)
	assert.Equal(t, int64(1), logs[0].OrderID)
}

// 合约策略把 buy/sell 翻译成 long/short 并设置杠杆
func TestWebhookFuturesOpensLong(t *testing.T) {
	gw := futuresFakeGateway()
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "ETH 合约", TradingPair: "ETH/USDT",
		MarketType: "futures", Leverage: 5, RiskType: "fixed_amount", RiskValue: 300,
		IsActive: true, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, exchange.SideBuy, gw.submitted[0].Side)
	assert.Equal(t, exchange.MarketFutures, gw.submitted[0].Market)
	assert.False(t, gw.submitted[0].ReduceOnly)
	assert.Equal(t, []int{5}, gw.leverageCalls)
}

// 平仓信号用 reduceOnly 提交
func TestWebhookFuturesClosePosition(t *testing.T) {
	gw := futuresFakeGateway()
	gw.position = &exchange.Position{Symbol: "ETHUSDT", Amount: 0.5}
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "ETH 合约", TradingPair: "ETH/USDT",
		MarketType: "futures", Leverage: 5, RiskType: "percentage", RiskValue: 100,
		IsActive: true, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy", "close_position": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, exchange.SideSell, gw.submitted[0].Side)
	assert.True(t, gw.submitted[0].ReduceOnly)
	assert.Equal(t, "0.500", gw.submitted[0].Quantity)
}

func TestWebhookStrategyNotFound(t *testing.T) {
	server, _ := newTestServer(t, spotFakeGateway())

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": "missing", "action": "buy",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookInactiveStrategy(t *testing.T) {
	server, db := newTestServer(t, spotFakeGateway())
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "停用", TradingPair: "BTC/USDT",
		MarketType: "spot", RiskType: "fixed_amount", RiskValue: 100,
		IsActive: false, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookMissingExchangeCredentials(t *testing.T) {
	server, db := newTestServer(t, spotFakeGateway())
	s := &config.Strategy{
		UserID: "u1", Name: "无凭证", TradingPair: "BTC/USDT",
		MarketType: "spot", RiskType: "fixed_amount", RiskValue: 100,
		IsActive: true, Exchange: "binance",
	}
	require.NoError(t, db.CreateStrategy(s))

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": s.ID, "action": "buy",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookRejectsUnknownAction(t *testing.T) {
	server, _ := newTestServer(t, spotFakeGateway())

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": "x", "action": "hold",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// 保证金不足: 返回 rejected 并落一条 rejected 日志，不提交订单
func TestWebhookRejectionLogged(t *testing.T) {
	gw := futuresFakeGateway()
	gw.balance = 10
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "ETH 合约", TradingPair: "ETH/USDT",
		MarketType: "futures", Leverage: 2, RiskType: "fixed_amount", RiskValue: 300,
		IsActive: true, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp["status"])

	assert.Empty(t, gw.submitted)
	logs, err := db.ListSignalLogs("u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "rejected", logs[0].Status)
}

// 提交失败返回 500 并落 error 日志
func TestWebhookSubmitFailure(t *testing.T) {
	gw := spotFakeGateway()
	gw.submitErr = errors.New("binance: -1021 timestamp out of recv window")
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "BTC", TradingPair: "BTC/USDT",
		MarketType: "spot", RiskType: "fixed_amount", RiskValue: 100,
		IsActive: true, Exchange: "binance",
	})

	w := postWebhook(server, map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	logs, err := db.ListSignalLogs("u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Status)
}

// 同一策略的并发相同信号最多成交一单:
// 余额只够一单，锁保证第二个信号看到的是扣减后的余额
func TestWebhookConcurrentSignalsSingleOrder(t *testing.T) {
	gw := spotFakeGateway()
	gw.balance = 100 // 恰好够 100 USDT 的一单
	server, db := newTestServer(t, gw)
	strategy := seedStrategy(t, db, &config.Strategy{
		UserID: "u1", Name: "BTC", TradingPair: "BTC/USDT",
		MarketType: "spot", RiskType: "fixed_amount", RiskValue: 100,
		IsActive: true, Exchange: "binance",
	})

	body := map[string]interface{}{
		"user_id": "u1", "strategy_id": strategy.ID, "action": "buy",
	}

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postWebhook(server, body).Code
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, len(gw.submitted), 1, "并发信号不得重复下单")

	success := 0
	for _, code := range codes {
		if code == http.StatusOK {
			success++
		}
	}
	assert.Equal(t, 1, success, "恰好一个信号成交: %v", codes)
}
