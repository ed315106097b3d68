package exchange

import (
	"context"
	"errors"
)

// MarketType 市场类型
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// OrderSide 交易所订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// PositionSide 合约持仓方向（与订单方向是两个维度）
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// ErrSymbolNotFound 交易所不存在该交易对
var ErrSymbolNotFound = errors.New("symbol not found")

// SymbolFilterSet 交易所发布的单个交易对数值约束（每次校验前重新拉取，不做缓存）
type SymbolFilterSet struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	// LOT_SIZE
	MinQty   float64
	MaxQty   float64
	StepSize float64

	// PRICE_FILTER
	MinPrice float64
	MaxPrice float64
	TickSize float64

	// MIN_NOTIONAL / NOTIONAL
	MinNotional float64
}

// AccountSnapshot 资产 -> 可用余额
// 现货取 free，合约取 availableBalance（可用保证金）
type AccountSnapshot map[string]float64

// Position 合约持仓快照
// Amount 带符号：正数为多头，负数为空头
type Position struct {
	Symbol string
	Amount float64
}

// OrderRequest 市价单请求（quantity 已截断到 stepSize 精度）
type OrderRequest struct {
	Symbol     string
	Market     MarketType
	Side       OrderSide
	Quantity   string
	ReduceOnly bool // 仅合约平仓使用
}

// OrderReceipt 交易所下单回执
type OrderReceipt struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Status        string
	ExecutedQty   string
}

// Gateway 市场数据与下单网关
// 校验引擎只依赖这个接口，便于测试时注入假实现
type Gateway interface {
	// SymbolFilters 获取交易对约束，不存在返回 ErrSymbolNotFound
	SymbolFilters(ctx context.Context, symbol string, market MarketType) (*SymbolFilterSet, error)

	// AccountBalances 获取账户可用余额快照
	AccountBalances(ctx context.Context, market MarketType) (AccountSnapshot, error)

	// OpenPosition 获取合约当前持仓（单向持仓模式），无持仓返回 nil
	OpenPosition(ctx context.Context, symbol string) (*Position, error)

	// Price 获取最新成交价
	Price(ctx context.Context, symbol string, market MarketType) (float64, error)

	// SetLeverage 设置合约杠杆
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SubmitMarketOrder 提交市价单
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (*OrderReceipt, error)
}
