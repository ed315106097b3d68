package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"tvbridge/pkg/logger"
)

const (
	spotTestnetBaseURL    = "https://testnet.binance.vision"
	futuresTestnetBaseURL = "https://testnet.binancefuture.com"

	// 单次交易所调用超时，超时按市场数据错误处理，绝不悬挂
	requestTimeout = 10 * time.Second
)

// BinanceGateway 币安网关（现货 + U本位合约）
type BinanceGateway struct {
	spot    *binance.Client
	futures *futures.Client
	timeout time.Duration
	log     *zap.Logger
}

// NewBinanceGateway 创建币安网关
// 每个用户的凭证独立创建实例，testnet 时切换到测试网地址
func NewBinanceGateway(apiKey, secretKey string, testnet bool) *BinanceGateway {
	spotClient := binance.NewClient(apiKey, secretKey)
	futuresClient := futures.NewClient(apiKey, secretKey)

	if testnet {
		spotClient.BaseURL = spotTestnetBaseURL
		futuresClient.BaseURL = futuresTestnetBaseURL
	}

	return &BinanceGateway{
		spot:    spotClient,
		futures: futuresClient,
		timeout: requestTimeout,
		log:     logger.With("exchange"),
	}
}

func (g *BinanceGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// SymbolFilters 获取交易对约束
func (g *BinanceGateway) SymbolFilters(ctx context.Context, symbol string, market MarketType) (*SymbolFilterSet, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if market == MarketSpot {
		info, err := g.spot.NewExchangeInfoService().Symbols(symbol).Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取现货交易规则失败: %w", err)
		}
		for _, s := range info.Symbols {
			if s.Symbol == symbol {
				return parseFilters(s.Symbol, s.BaseAsset, s.QuoteAsset, s.Filters), nil
			}
		}
		return nil, ErrSymbolNotFound
	}

	// 合约 exchangeInfo 不支持按 symbol 过滤，拉全量后查找
	info, err := g.futures.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取合约交易规则失败: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return parseFilters(s.Symbol, s.BaseAsset, s.QuoteAsset, s.Filters), nil
		}
	}
	return nil, ErrSymbolNotFound
}

// AccountBalances 获取账户可用余额快照
func (g *BinanceGateway) AccountBalances(ctx context.Context, market MarketType) (AccountSnapshot, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	snapshot := make(AccountSnapshot)

	if market == MarketSpot {
		account, err := g.spot.NewGetAccountService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取现货账户失败: %w", err)
		}
		for _, b := range account.Balances {
			free, _ := strconv.ParseFloat(b.Free, 64)
			snapshot[b.Asset] = free
		}
		return snapshot, nil
	}

	account, err := g.futures.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取合约账户失败: %w", err)
	}
	for _, a := range account.Assets {
		available, _ := strconv.ParseFloat(a.AvailableBalance, 64)
		snapshot[a.Asset] = available
	}
	return snapshot, nil
}

// OpenPosition 获取合约持仓（单向持仓模式下 positionSide 为 BOTH）
func (g *BinanceGateway) OpenPosition(ctx context.Context, symbol string) (*Position, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	risks, err := g.futures.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取持仓失败: %w", err)
	}

	for _, p := range risks {
		if p.Symbol != symbol || p.PositionSide != "BOTH" {
			continue
		}
		amount, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amount == 0 {
			return nil, nil
		}
		return &Position{Symbol: p.Symbol, Amount: amount}, nil
	}
	return nil, nil
}

// Price 获取最新成交价
func (g *BinanceGateway) Price(ctx context.Context, symbol string, market MarketType) (float64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var raw string
	if market == MarketSpot {
		prices, err := g.spot.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return 0, fmt.Errorf("获取 %s 现货价格失败: %w", symbol, err)
		}
		if len(prices) == 0 {
			return 0, fmt.Errorf("获取 %s 现货价格失败: 交易所返回空列表", symbol)
		}
		raw = prices[0].Price
	} else {
		prices, err := g.futures.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return 0, fmt.Errorf("获取 %s 合约价格失败: %w", symbol, err)
		}
		if len(prices) == 0 {
			return 0, fmt.Errorf("获取 %s 合约价格失败: 交易所返回空列表", symbol)
		}
		raw = prices[0].Price
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("交易所返回的 %s 价格不合法: %q", symbol, raw)
	}
	return price, nil
}

// SetLeverage 设置合约杠杆
func (g *BinanceGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if _, err := g.futures.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("设置杠杆失败: %w", err)
	}
	return nil
}

// SubmitMarketOrder 提交市价单
func (g *BinanceGateway) SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderReceipt, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	g.log.Info("📤 提交市价单",
		zap.String("symbol", req.Symbol),
		zap.String("market", string(req.Market)),
		zap.String("side", string(req.Side)),
		zap.String("quantity", req.Quantity),
		zap.Bool("reduceOnly", req.ReduceOnly))

	if req.Market == MarketSpot {
		resp, err := g.spot.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(binance.SideType(req.Side)).
			Type(binance.OrderTypeMarket).
			Quantity(req.Quantity).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("现货下单失败: %w", err)
		}
		return &OrderReceipt{
			OrderID:       resp.OrderID,
			ClientOrderID: resp.ClientOrderID,
			Symbol:        resp.Symbol,
			Status:        string(resp.Status),
			ExecutedQty:   resp.ExecutedQuantity,
		}, nil
	}

	svc := g.futures.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity)
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("合约下单失败: %w", err)
	}
	return &OrderReceipt{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Status:        string(resp.Status),
		ExecutedQty:   resp.ExecutedQuantity,
	}, nil
}

// parseFilters 从交易所原始 filter 列表解析约束
// MIN_NOTIONAL 在现货/合约下有 minNotional 和 notional 两种字段拼写，全部兼容
func parseFilters(symbol, baseAsset, quoteAsset string, raw []map[string]interface{}) *SymbolFilterSet {
	fs := &SymbolFilterSet{
		Symbol:     symbol,
		BaseAsset:  baseAsset,
		QuoteAsset: quoteAsset,
	}

	for _, f := range raw {
		filterType, _ := f["filterType"].(string)
		switch filterType {
		case "LOT_SIZE":
			fs.MinQty = filterFloat(f, "minQty")
			fs.MaxQty = filterFloat(f, "maxQty")
			fs.StepSize = filterFloat(f, "stepSize")
		case "PRICE_FILTER":
			fs.MinPrice = filterFloat(f, "minPrice")
			fs.MaxPrice = filterFloat(f, "maxPrice")
			fs.TickSize = filterFloat(f, "tickSize")
		case "MIN_NOTIONAL", "NOTIONAL":
			if v := filterFloat(f, "minNotional", "notional"); v > 0 {
				fs.MinNotional = v
			}
		}
	}
	return fs
}

func filterFloat(f map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch v := f[key].(type) {
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed != 0 {
				return parsed
			}
		case float64:
			if v != 0 {
				return v
			}
		}
	}
	return 0
}
