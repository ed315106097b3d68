package validator

import (
	"tvbridge/exchange"
)

// ResolveSide 由动作和是否平仓映射订单方向与持仓方向
//
//	long  + 开仓 -> BUY/LONG    long  + 平仓 -> SELL/LONG
//	short + 开仓 -> SELL/SHORT  short + 平仓 -> BUY/SHORT
//	buy -> BUY  sell -> SELL  （现货无持仓方向）
//
// 映射是全函数: 任何未列出的组合返回 ok=false，绝不落入默认分支
func ResolveSide(action string, closePosition bool) (side exchange.OrderSide, positionSide exchange.PositionSide, ok bool) {
	switch action {
	case "buy":
		return exchange.SideBuy, "", true
	case "sell":
		return exchange.SideSell, "", true
	case "long":
		if closePosition {
			return exchange.SideSell, exchange.PositionLong, true
		}
		return exchange.SideBuy, exchange.PositionLong, true
	case "short":
		if closePosition {
			return exchange.SideBuy, exchange.PositionShort, true
		}
		return exchange.SideSell, exchange.PositionShort, true
	}
	return "", "", false
}
