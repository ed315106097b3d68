package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvbridge/exchange"
)

var btcFilters = &exchange.SymbolFilterSet{
	Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
}

func TestResolveQuantityPercentageBuy(t *testing.T) {
	p := &Payload{Symbol: "BTCUSDT", Action: "buy", Percentage: 50}
	balances := exchange.AccountSnapshot{"USDT": 1000}

	qty, violations := ResolveQuantity(p.ResolveSizing(), p, btcFilters, balances, 50000)
	require.Empty(t, violations)
	assert.InDelta(t, 0.01, qty, 1e-12) // 1000 * 50% / 50000
}

func TestResolveQuantityQuoteAmountBuy(t *testing.T) {
	p := &Payload{Symbol: "BTCUSDT", Action: "buy", USDTAmount: 100}
	balances := exchange.AccountSnapshot{"USDT": 1000}

	qty, violations := ResolveQuantity(p.ResolveSizing(), p, btcFilters, balances, 50000)
	require.Empty(t, violations)
	assert.InDelta(t, 0.002, qty, 1e-12)
}

// 卖出按基础资产余额的比例取数量
func TestResolveQuantityPercentageSell(t *testing.T) {
	p := &Payload{Symbol: "BTCUSDT", Action: "sell", Percentage: 25}
	balances := exchange.AccountSnapshot{"BTC": 0.8}

	qty, violations := ResolveQuantity(p.ResolveSizing(), p, btcFilters, balances, 50000)
	require.Empty(t, violations)
	assert.InDelta(t, 0.2, qty, 1e-12)
}

func TestResolveQuantityQuoteAmountSell(t *testing.T) {
	p := &Payload{Symbol: "BTCUSDT", Action: "sell", USDTAmount: 100}
	balances := exchange.AccountSnapshot{"BTC": 0.8}

	qty, violations := ResolveQuantity(p.ResolveSizing(), p, btcFilters, balances, 50000)
	require.Empty(t, violations)
	assert.InDelta(t, 0.002, qty, 1e-12)
}

// 显式数量绕过计算，原样返回
func TestResolveQuantityExplicit(t *testing.T) {
	explicit := FlexFloat(0.123)
	p := &Payload{Symbol: "BTCUSDT", Action: "long", Quantity: &explicit}

	qty, violations := ResolveQuantity(p.ResolveSizing(), p, btcFilters, nil, 50000)
	require.Empty(t, violations)
	assert.Equal(t, 0.123, qty)
}

func TestResolveSizingPriority(t *testing.T) {
	explicit := FlexFloat(1)
	p := &Payload{Quantity: &explicit, Percentage: 50, USDTAmount: 100}
	assert.Equal(t, SizingExplicit, p.ResolveSizing().Mode)

	p = &Payload{Percentage: 50, USDTAmount: 100}
	assert.Equal(t, SizingPercentage, p.ResolveSizing().Mode)

	p = &Payload{USDTAmount: 100}
	assert.Equal(t, SizingQuoteAmount, p.ResolveSizing().Mode)

	p = &Payload{}
	assert.Equal(t, SizingUnspecified, p.ResolveSizing().Mode)
}
