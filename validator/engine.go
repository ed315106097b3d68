package validator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"tvbridge/exchange"
	"tvbridge/pkg/logger"
)

// Engine 信号校验引擎
// 流水线: 字段检查 -> 市场数据获取 -> 数量计算 -> 步进截断与约束检查
// -> 方向解析 -> 资金检查。约束与资金类违规全部累积后一次返回，
// 字段和市场数据类失败直接短路。
type Engine struct {
	gateway exchange.Gateway
}

// New 创建校验引擎
func New(gateway exchange.Gateway) *Engine {
	return &Engine{gateway: gateway}
}

// Validate 校验信号载荷，返回完整订单或结构化拒绝，绝无中间状态
func (e *Engine) Validate(ctx context.Context, p *Payload) Outcome {
	p.normalize()

	// 字段检查: 所有缺失一次列全
	var fieldViolations []Violation
	if p.Symbol == "" {
		fieldViolations = append(fieldViolations, Violation{Kind: ViolationMissingField, Field: "symbol"})
	}
	if p.Action == "" {
		fieldViolations = append(fieldViolations, Violation{Kind: ViolationMissingField, Field: "action"})
	} else if !validActions[p.Action] {
		fieldViolations = append(fieldViolations, Violation{Kind: ViolationInvalidAction, Field: p.Action})
	}
	sizing := p.ResolveSizing()
	if sizing.Mode == SizingUnspecified {
		fieldViolations = append(fieldViolations, Violation{Kind: ViolationMissingSizing})
	}
	if len(fieldViolations) > 0 {
		return invalid(FailField, fieldViolations...)
	}

	market := p.Market()
	closing := market == exchange.MarketFutures && p.ClosePosition

	// 市场数据获取: 任一失败直接短路，后续计算无从谈起
	fs, err := e.gateway.SymbolFilters(ctx, p.Symbol, market)
	if err != nil {
		if errors.Is(err, exchange.ErrSymbolNotFound) {
			return invalid(FailMarketData, Violation{Kind: ViolationSymbolNotFound, Symbol: p.Symbol})
		}
		return invalid(FailMarketData, Violation{Kind: ViolationMarketData, Symbol: p.Symbol, Err: err})
	}

	price, err := e.resolvePrice(ctx, p, market)
	if err != nil {
		return invalid(FailMarketData, Violation{Kind: ViolationMarketData, Symbol: p.Symbol, Err: err})
	}

	var (
		balances exchange.AccountSnapshot
		position *exchange.Position
	)
	if closing {
		// 平仓的资金池是当前持仓的绝对值，不看钱包余额
		position, err = e.gateway.OpenPosition(ctx, p.Symbol)
		if err != nil {
			return invalid(FailMarketData, Violation{Kind: ViolationMarketData, Symbol: p.Symbol, Err: err})
		}
		if position == nil || position.Amount == 0 {
			return invalid(FailFunds, Violation{Kind: ViolationNoOpenPosition, Symbol: p.Symbol})
		}
		amt := position.Amount
		if amt < 0 {
			amt = -amt
		}
		balances = exchange.AccountSnapshot{fs.BaseAsset: amt}
	} else {
		balances, err = e.gateway.AccountBalances(ctx, market)
		if err != nil {
			return invalid(FailMarketData, Violation{Kind: ViolationMarketData, Symbol: p.Symbol, Err: err})
		}
		requiredAsset := fs.QuoteAsset
		if p.Action == "sell" {
			requiredAsset = fs.BaseAsset
		}
		if balances[requiredAsset] <= 0 {
			return invalid(FailFunds, Violation{
				Kind:      ViolationInsufficientFunds,
				Asset:     requiredAsset,
				Available: 0,
			})
		}
	}

	// 数量计算
	rawQty, qtyViolations := ResolveQuantity(sizing, p, fs, balances, price)
	if len(qtyViolations) > 0 {
		return invalid(FailSizing, qtyViolations...)
	}
	if rawQty <= 0 {
		return invalid(FailSizing, Violation{Kind: ViolationAmbiguousSizing})
	}

	// 步进截断
	qtyStr := TruncateToStep(rawQty, fs.StepSize)
	qty, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return invalid(FailSizing, Violation{Kind: ViolationMarketData, Symbol: p.Symbol, Err: err})
	}
	adjusted := qty != rawQty
	if adjusted {
		logger.Warn("⚠️ 数量已按步进截断",
			zap.String("symbol", p.Symbol),
			zap.Float64("raw", rawQty),
			zap.String("truncated", qtyStr),
			zap.Float64("step", fs.StepSize))
	}

	// 数值约束检查
	available := balances[fs.QuoteAsset]
	if closing {
		available = 0
	}
	violations := CheckConstraints(ConstraintInput{
		Market:    market,
		Quantity:  qty,
		Price:     price,
		Filters:   fs,
		Available: available,
		Closing:   closing,
	})
	if market == exchange.MarketFutures && !closing {
		violations = append(violations, CheckPriceFilter(price, fs)...)
	}

	// 方向解析
	side, positionSide, ok := ResolveSide(p.Action, p.ClosePosition)
	if !ok {
		return invalid(FailField, Violation{Kind: ViolationInvalidAction, Field: p.Action})
	}

	// 资金检查
	leverage := p.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	switch {
	case market == exchange.MarketSpot:
		violations = append(violations, CheckSpotFunds(p.Action, qty, price, fs, balances)...)
	case closing:
		violations = append(violations, CheckClosePosition(position, positionSide, qty, p.Symbol)...)
	default:
		// 杠杆先于保证金检查设置（非致命副作用，失败只告警），
		// 保证金计算才能和交易所实际生效的杠杆一致
		if err := e.gateway.SetLeverage(ctx, p.Symbol, leverage); err != nil {
			logger.Warn("⚠️ 设置杠杆失败，按当前杠杆继续",
				zap.String("symbol", p.Symbol),
				zap.Int("leverage", leverage),
				zap.Error(err))
		}
		violations = append(violations, CheckMargin(qty, price, leverage, balances[fs.QuoteAsset], fs.QuoteAsset)...)
	}

	if len(violations) > 0 {
		kind := FailFunds
		for _, v := range violations {
			switch v.Kind {
			case ViolationMinQty, ViolationMaxQty, ViolationStepMultiple, ViolationMinNotional, ViolationPriceRange:
				kind = FailConstraint
			}
		}
		return invalid(kind, violations...)
	}

	order := &OrderIntent{
		Symbol:        p.Symbol,
		Action:        p.Action,
		Market:        market,
		Side:          side,
		PositionSide:  positionSide,
		Quantity:      qtyStr,
		Price:         price,
		ClosePosition: p.ClosePosition,
	}
	if market == exchange.MarketFutures {
		order.Leverage = leverage
	}

	summary := e.summarize(order, fs, rawQty, adjusted)
	logger.Info("✅ 信号校验通过", zap.String("summary", summary))

	return Outcome{
		Valid:   true,
		Order:   order,
		Message: summary,
		Summary: summary,
	}
}

// resolvePrice 信号自带价格优先，否则取交易所最新价
func (e *Engine) resolvePrice(ctx context.Context, p *Payload, market exchange.MarketType) (float64, error) {
	if p.Price != nil && float64(*p.Price) > 0 {
		return float64(*p.Price), nil
	}
	return e.gateway.Price(ctx, p.Symbol, market)
}

// summarize 生成单行执行摘要，截断调整时附带提示前缀
func (e *Engine) summarize(order *OrderIntent, fs *exchange.SymbolFilterSet, rawQty float64, adjusted bool) string {
	prefix := ""
	if adjusted {
		prefix = fmt.Sprintf("⚠️ 数量已按步进调整 %.8f -> %s | ", rawQty, order.Quantity)
	}

	if order.Market == exchange.MarketSpot {
		return fmt.Sprintf("%s✅ 现货 %s %s %s @ %g %s",
			prefix, order.Side, order.Quantity, fs.BaseAsset, order.Price, fs.QuoteAsset)
	}

	suffix := ""
	if order.ClosePosition {
		suffix = " (平仓)"
	}
	return fmt.Sprintf("%s✅ 合约 %s %s %s x%d @ %g %s%s",
		prefix, order.PositionSide, order.Side, order.Quantity, order.Leverage, order.Price, fs.QuoteAsset, suffix)
}
