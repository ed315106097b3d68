package validator

import (
	"math"

	"github.com/shopspring/decimal"

	"tvbridge/exchange"
)

// stepPrecision 由 stepSize 推导小数位数: 0.001 -> 3, 1 -> 0
func stepPrecision(stepSize float64) int32 {
	p := int32(math.Round(-math.Log10(stepSize)))
	if p < 0 {
		return 0
	}
	return p
}

// TruncateToStep 将数量向下截断到 stepSize 的整数倍，并按步进精度格式化
// stepSize<=0 时原样透传（按8位精度格式化），绝不向上取整
func TruncateToStep(quantity, stepSize float64) string {
	q := decimal.NewFromFloat(quantity)
	if stepSize <= 0 {
		return q.StringFixed(8)
	}
	step := decimal.NewFromFloat(stepSize)
	truncated := q.Div(step).Floor().Mul(step)
	return truncated.StringFixed(stepPrecision(stepSize))
}

// isStepMultiple (qty - minQty) 是否为 stepSize 的整数倍
// 用 decimal 取模，避免浮点余数误判
func isStepMultiple(quantity, minQty, stepSize float64) bool {
	if stepSize <= 0 {
		return true
	}
	q := decimal.NewFromFloat(quantity)
	base := decimal.NewFromFloat(minQty)
	step := decimal.NewFromFloat(stepSize)
	return q.Sub(base).Mod(step).IsZero()
}

// ConstraintInput 数值约束检查入参
type ConstraintInput struct {
	Market    exchange.MarketType
	Quantity  float64 // 截断后的数量
	Price     float64
	Filters   *exchange.SymbolFilterSet
	Available float64 // 计价货币可用余额，用于最小数量的差额提示，0 表示未知
	Closing   bool    // 合约平仓单，不受最小名义价值约束
}

// CheckConstraints 对照交易对过滤器检查数量约束
// 所有违规一次累积返回，不在第一条失败处中断
func CheckConstraints(in ConstraintInput) []Violation {
	fs := in.Filters
	var violations []Violation

	if fs.MinQty > 0 && in.Quantity < fs.MinQty {
		v := Violation{
			Kind:   ViolationMinQty,
			Asset:  fs.BaseAsset,
			Actual: in.Quantity,
			Limit:  fs.MinQty,
		}
		if in.Available > 0 && in.Price > 0 {
			required := fs.MinQty * in.Price
			v.Required = required
			v.Available = in.Available
			v.Percent = required / in.Available * 100
		}
		violations = append(violations, v)
	}

	// 最大下单量仅合约侧校验
	if in.Market == exchange.MarketFutures && fs.MaxQty > 0 && in.Quantity > fs.MaxQty {
		violations = append(violations, Violation{
			Kind:   ViolationMaxQty,
			Actual: in.Quantity,
			Limit:  fs.MaxQty,
		})
	}

	if !isStepMultiple(in.Quantity, fs.MinQty, fs.StepSize) {
		violations = append(violations, Violation{
			Kind:   ViolationStepMultiple,
			Actual: in.Quantity,
			Limit:  fs.StepSize,
		})
	}

	// 平仓只能减少已有敞口，残余小仓位必须始终可平
	if !in.Closing && fs.MinNotional > 0 && in.Price > 0 {
		notional := in.Quantity * in.Price
		if notional < fs.MinNotional {
			violations = append(violations, Violation{
				Kind:   ViolationMinNotional,
				Asset:  fs.QuoteAsset,
				Actual: notional,
				Limit:  fs.MinNotional,
			})
		}
	}

	return violations
}

// CheckPriceFilter 将价格按 tickSize 精度取整后检查上下界
// 边界为 0 表示交易所未设限，跳过对应方向
func CheckPriceFilter(price float64, fs *exchange.SymbolFilterSet) []Violation {
	tick := fs.TickSize
	if tick <= 0 {
		tick = 0.00000001
	}
	rounded, _ := decimal.NewFromFloat(price).Round(stepPrecision(tick)).Float64()

	if (fs.MinPrice > 0 && rounded < fs.MinPrice) || (fs.MaxPrice > 0 && rounded > fs.MaxPrice) {
		return []Violation{{
			Kind:      ViolationPriceRange,
			Actual:    rounded,
			Limit:     fs.MinPrice,
			LimitHigh: fs.MaxPrice,
		}}
	}
	return nil
}
