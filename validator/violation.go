package validator

import (
	"fmt"
	"strings"
)

// ViolationKind 违规类型枚举
type ViolationKind string

const (
	ViolationMissingField       ViolationKind = "MISSING_FIELD"
	ViolationInvalidAction      ViolationKind = "INVALID_ACTION"
	ViolationMissingSizing      ViolationKind = "MISSING_SIZING"
	ViolationAmbiguousSizing    ViolationKind = "AMBIGUOUS_SIZING"
	ViolationSymbolNotFound     ViolationKind = "SYMBOL_NOT_FOUND"
	ViolationMarketData         ViolationKind = "MARKET_DATA"
	ViolationMinQty             ViolationKind = "MIN_QTY"
	ViolationMaxQty             ViolationKind = "MAX_QTY"
	ViolationStepMultiple       ViolationKind = "STEP_MULTIPLE"
	ViolationMinNotional        ViolationKind = "MIN_NOTIONAL"
	ViolationPriceRange         ViolationKind = "PRICE_RANGE"
	ViolationInsufficientFunds  ViolationKind = "INSUFFICIENT_FUNDS"
	ViolationInsufficientMargin ViolationKind = "INSUFFICIENT_MARGIN"
	ViolationNoOpenPosition     ViolationKind = "NO_OPEN_POSITION"
	ViolationPositionTooSmall   ViolationKind = "POSITION_TOO_SMALL"
)

// Violation 单条结构化违规记录
// 数值字段按类型取用，文案统一由 Message 渲染，保证可被程序消费也可读
type Violation struct {
	Kind      ViolationKind
	Field     string  // MISSING_FIELD / INVALID_ACTION
	Symbol    string
	Asset     string  // 涉及的币种（计价或基础资产）
	Actual    float64 // 实际值（数量/价格/名义价值）
	Limit     float64 // 触发的约束值（minQty/maxQty/step/minNotional/价格边界）
	LimitHigh float64 // PRICE_RANGE 的上界
	Required  float64 // 需要的金额/数量
	Available float64 // 可用的金额/数量
	Percent   float64 // 需求占可用余额的百分比
	Leverage  int     // INSUFFICIENT_MARGIN
	Side      string  // 平仓方向（多/空）
	Err       error   // MARKET_DATA 的底层错误
}

// Message 渲染单条违规的中文说明
func (v Violation) Message() string {
	switch v.Kind {
	case ViolationMissingField:
		return fmt.Sprintf("❌ 缺少必填字段: %s", v.Field)
	case ViolationInvalidAction:
		return fmt.Sprintf("❌ 无效的动作 %q，允许的值: buy, sell, long, short", v.Field)
	case ViolationMissingSizing:
		return "❌ 'quantity'、'percentage'、'usdt_amount' 三者至少提供一个"
	case ViolationAmbiguousSizing:
		return "❌ 无法计算下单数量: 未提供 percentage 或 usdt_amount"
	case ViolationSymbolNotFound:
		return fmt.Sprintf("❌ 交易对 %s 不存在或不可交易", v.Symbol)
	case ViolationMarketData:
		if v.Err != nil {
			return fmt.Sprintf("❌ 获取 %s 市场数据失败: %v", v.Symbol, v.Err)
		}
		return fmt.Sprintf("❌ 获取 %s 市场数据失败", v.Symbol)
	case ViolationMinQty:
		if v.Available > 0 {
			return fmt.Sprintf("❌ 数量 (%.8f %s) 低于最小下单量 (%g %s)。至少需要 %.2f %s，约为可用余额 (%.2f %s) 的 %.2f%%",
				v.Actual, v.Asset, v.Limit, v.Asset, v.Required, "USDT", v.Available, "USDT", v.Percent)
		}
		return fmt.Sprintf("❌ 数量 (%.8f) 低于最小下单量 (%g)", v.Actual, v.Limit)
	case ViolationMaxQty:
		return fmt.Sprintf("❌ 数量 (%.8f) 超过最大下单量 (%g)", v.Actual, v.Limit)
	case ViolationStepMultiple:
		return fmt.Sprintf("❌ 数量 (%.8f) 不是步进 %g 的有效倍数", v.Actual, v.Limit)
	case ViolationMinNotional:
		return fmt.Sprintf("❌ 订单总价值 (%.2f %s) 低于最小名义价值 (%.2f %s)", v.Actual, v.Asset, v.Limit, v.Asset)
	case ViolationPriceRange:
		return fmt.Sprintf("❌ 价格 %g 超出允许区间 (%g - %g)", v.Actual, v.Limit, v.LimitHigh)
	case ViolationInsufficientFunds:
		return fmt.Sprintf("❌ %s 余额不足: 需要 %.8f，可用 %.8f", v.Asset, v.Required, v.Available)
	case ViolationInsufficientMargin:
		return fmt.Sprintf("❌ 保证金不足，无法以 %dx 杠杆开仓: 需要 %.2f %s，可用 %.2f %s",
			v.Leverage, v.Required, v.Asset, v.Available, v.Asset)
	case ViolationNoOpenPosition:
		if v.Side != "" {
			return fmt.Sprintf("❌ %s 没有可平仓的%s头持仓", v.Symbol, v.Side)
		}
		return fmt.Sprintf("❌ %s 没有可平仓的持仓", v.Symbol)
	case ViolationPositionTooSmall:
		return fmt.Sprintf("❌ 平%s仓数量不足: 需要 %.8f，持仓 %.8f", v.Side, v.Required, v.Available)
	default:
		return fmt.Sprintf("❌ 校验失败 (%s)", v.Kind)
	}
}

// renderViolations 汇总多条违规为一段说明
// 错误全部累积后一次返回，信号作者不需要多轮试错
func renderViolations(violations []Violation) string {
	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		lines = append(lines, v.Message())
	}
	return strings.Join(lines, "\n")
}
