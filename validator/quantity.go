package validator

import (
	"tvbridge/exchange"
)

// ResolveQuantity 按仓位指令计算原始下单数量（截断前）
//
// 资金池取向:
//   - 现货买入 / 合约开仓: 计价货币余额，percentage 按余额比例换算，
//     usdt_amount 为固定金额，两者最终除以价格得到基础资产数量
//   - 现货卖出 / 合约平仓: 基础资产余额（平仓时为持仓绝对值），
//     percentage 直接按比例取数量，usdt_amount 按价格折算
func ResolveQuantity(sizing Sizing, p *Payload, fs *exchange.SymbolFilterSet, balances exchange.AccountSnapshot, price float64) (float64, []Violation) {
	if sizing.Mode == SizingExplicit {
		return sizing.Value, nil
	}

	sellSide := p.Action == "sell" || ((p.Action == "long" || p.Action == "short") && p.ClosePosition)

	if sellSide {
		switch sizing.Mode {
		case SizingPercentage:
			return balances[fs.BaseAsset] * sizing.Value / 100, nil
		case SizingQuoteAmount:
			if price <= 0 {
				return 0, []Violation{{Kind: ViolationMarketData, Symbol: fs.Symbol}}
			}
			return sizing.Value / price, nil
		}
		return 0, []Violation{{Kind: ViolationAmbiguousSizing}}
	}

	// 买入方向: 先确定要动用的计价货币金额
	var amountToUse float64
	switch sizing.Mode {
	case SizingPercentage:
		amountToUse = balances[fs.QuoteAsset] * sizing.Value / 100
	case SizingQuoteAmount:
		amountToUse = sizing.Value
	default:
		return 0, []Violation{{Kind: ViolationAmbiguousSizing}}
	}

	if price <= 0 {
		return 0, []Violation{{Kind: ViolationMarketData, Symbol: fs.Symbol}}
	}
	return amountToUse / price, nil
}
