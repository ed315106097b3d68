package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tvbridge/exchange"
)

func TestResolveSide(t *testing.T) {
	tests := []struct {
		action        string
		closePosition bool
		side          exchange.OrderSide
		positionSide  exchange.PositionSide
	}{
		{"buy", false, exchange.SideBuy, ""},
		{"sell", false, exchange.SideSell, ""},
		{"long", false, exchange.SideBuy, exchange.PositionLong},
		{"long", true, exchange.SideSell, exchange.PositionLong},
		{"short", false, exchange.SideSell, exchange.PositionShort},
		{"short", true, exchange.SideBuy, exchange.PositionShort},
	}
	for _, tt := range tests {
		side, positionSide, ok := ResolveSide(tt.action, tt.closePosition)
		assert.True(t, ok, "action=%s close=%v", tt.action, tt.closePosition)
		assert.Equal(t, tt.side, side)
		assert.Equal(t, tt.positionSide, positionSide)
	}
}

// 未知动作不落默认分支
func TestResolveSideUnknown(t *testing.T) {
	for _, action := range []string{"", "hold", "BUY ", "close"} {
		_, _, ok := ResolveSide(action, false)
		assert.False(t, ok, "action=%q", action)
	}
}
