package validator

import (
	"math"

	"tvbridge/exchange"
)

// CheckSpotFunds 现货资金校验
// 买入需要计价货币覆盖名义价值，卖出需要基础资产覆盖数量
func CheckSpotFunds(action string, quantity, price float64, fs *exchange.SymbolFilterSet, balances exchange.AccountSnapshot) []Violation {
	if action == "buy" {
		required := quantity * price
		available := balances[fs.QuoteAsset]
		if required > available {
			return []Violation{{
				Kind:      ViolationInsufficientFunds,
				Asset:     fs.QuoteAsset,
				Required:  required,
				Available: available,
			}}
		}
		return nil
	}

	available := balances[fs.BaseAsset]
	if quantity > available {
		return []Violation{{
			Kind:      ViolationInsufficientFunds,
			Asset:     fs.BaseAsset,
			Required:  quantity,
			Available: available,
		}}
	}
	return nil
}

// CheckMargin 合约开仓保证金校验: 所需保证金 = 名义价值 / 杠杆
func CheckMargin(quantity, price float64, leverage int, available float64, quoteAsset string) []Violation {
	if leverage <= 0 {
		leverage = 1
	}
	required := quantity * price / float64(leverage)
	if required > available {
		return []Violation{{
			Kind:      ViolationInsufficientMargin,
			Asset:     quoteAsset,
			Required:  required,
			Available: available,
			Leverage:  leverage,
		}}
	}
	return nil
}

// CheckClosePosition 平仓数量校验，方向敏感
// positionAmt 为正是多头持仓，为负是空头持仓；平多只看多头敞口，平空只看空头敞口
func CheckClosePosition(position *exchange.Position, positionSide exchange.PositionSide, quantity float64, symbol string) []Violation {
	sideName := "多"
	if positionSide == exchange.PositionShort {
		sideName = "空"
	}

	if position == nil || position.Amount == 0 {
		return []Violation{{Kind: ViolationNoOpenPosition, Symbol: symbol}}
	}

	directionMatches := (positionSide == exchange.PositionLong && position.Amount > 0) ||
		(positionSide == exchange.PositionShort && position.Amount < 0)
	if !directionMatches {
		return []Violation{{Kind: ViolationNoOpenPosition, Symbol: symbol, Side: sideName}}
	}

	held := math.Abs(position.Amount)
	if quantity > held {
		return []Violation{{
			Kind:      ViolationPositionTooSmall,
			Side:      sideName,
			Required:  quantity,
			Available: held,
		}}
	}
	return nil
}
