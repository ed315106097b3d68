package validator

import (
	"fmt"
	"strconv"
	"strings"

	"tvbridge/exchange"
)

// FlexFloat 兼容字符串和数字两种JSON写法的浮点字段
// TradingView 的模板变量展开后经常把数字写成字符串
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("无法解析数值 %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// Payload 信号载荷（字段宽松，由信号源或编排层构造）
type Payload struct {
	Symbol        string     `json:"symbol"`
	Action        string     `json:"action"`
	Quantity      *FlexFloat `json:"quantity,omitempty"`
	Qty           *FlexFloat `json:"qty,omitempty"` // quantity 的别名
	Percentage    FlexFloat  `json:"percentage,omitempty"`
	USDTAmount    FlexFloat  `json:"usdt_amount,omitempty"`
	Price         *FlexFloat `json:"price,omitempty"`
	Leverage      int        `json:"leverage,omitempty"`
	ClosePosition bool       `json:"close_position,omitempty"`
}

// validActions 允许的动作集合
var validActions = map[string]bool{
	"buy":   true,
	"sell":  true,
	"long":  true,
	"short": true,
}

// Market 由动作推导市场类型：buy/sell 为现货，long/short 为合约
func (p *Payload) Market() exchange.MarketType {
	if p.Action == "buy" || p.Action == "sell" {
		return exchange.MarketSpot
	}
	return exchange.MarketFutures
}

// normalize 规整符号与动作的大小写和空白
func (p *Payload) normalize() {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	p.Action = strings.ToLower(strings.TrimSpace(p.Action))
}

// explicitQuantity 信号中直接给出的数量（quantity 优先于 qty 别名）
func (p *Payload) explicitQuantity() (float64, bool) {
	if p.Quantity != nil {
		return float64(*p.Quantity), true
	}
	if p.Qty != nil {
		return float64(*p.Qty), true
	}
	return 0, false
}

// SizingMode 仓位计算模式（三选一，入口处解析一次，后续不再重复判断）
type SizingMode int

const (
	SizingUnspecified SizingMode = iota
	SizingExplicit               // 信号直接给出数量，计算被绕过
	SizingPercentage             // 可用余额（或持仓）的百分比
	SizingQuoteAmount            // 固定计价货币金额
)

// Sizing 解析后的仓位指令
type Sizing struct {
	Mode  SizingMode
	Value float64
}

// ResolveSizing 解析仓位模式：quantity 字段存在时权威生效，其次 percentage，再次 usdt_amount
func (p *Payload) ResolveSizing() Sizing {
	if qty, ok := p.explicitQuantity(); ok {
		return Sizing{Mode: SizingExplicit, Value: qty}
	}
	if float64(p.Percentage) > 0 {
		return Sizing{Mode: SizingPercentage, Value: float64(p.Percentage)}
	}
	if float64(p.USDTAmount) > 0 {
		return Sizing{Mode: SizingQuoteAmount, Value: float64(p.USDTAmount)}
	}
	return Sizing{Mode: SizingUnspecified}
}

// OrderIntent 校验通过后的完整订单描述
// Quantity 的小数位数与交易对 stepSize 精度完全一致
type OrderIntent struct {
	Symbol        string                `json:"symbol"`
	Action        string                `json:"action"`
	Market        exchange.MarketType   `json:"market"`
	Side          exchange.OrderSide    `json:"side"`
	PositionSide  exchange.PositionSide `json:"positionSide,omitempty"` // 仅合约
	Quantity      string                `json:"quantity"`
	Price         float64               `json:"price"`
	Leverage      int                   `json:"leverage,omitempty"` // 仅合约
	ClosePosition bool                  `json:"close_position,omitempty"`
}

// FailureKind 失败类别，编排层据此映射HTTP状态码
type FailureKind string

const (
	FailNone       FailureKind = ""
	FailField      FailureKind = "field"       // 载荷字段缺失/非法
	FailMarketData FailureKind = "market_data" // 交易所数据获取失败/符号不存在
	FailSizing     FailureKind = "sizing"      // 仓位指令无法解析
	FailConstraint FailureKind = "constraint"  // 超出交易所数值约束
	FailFunds      FailureKind = "funds"       // 余额/保证金/持仓不足
)

// Outcome 校验结果：要么是完整订单，要么是带结构化违规记录的拒绝
// 不存在中间状态
type Outcome struct {
	Valid      bool
	Order      *OrderIntent
	Kind       FailureKind
	Violations []Violation
	Message    string // 面向信号作者的完整说明
	Summary    string // 单行日志摘要
}

// invalid 组装失败结果，消息在此边界一次性渲染
func invalid(kind FailureKind, violations ...Violation) Outcome {
	msg := renderViolations(violations)
	if kind == FailField {
		msg += "\n\n" + payloadShapeHint
	}
	return Outcome{
		Valid:      false,
		Kind:       kind,
		Violations: violations,
		Message:    msg,
		Summary:    msg,
	}
}

// payloadShapeHint 载荷格式说明，字段错误时附带返回，方便信号作者直接修正
const payloadShapeHint = `❌ 载荷必须符合以下格式:

{
    "symbol": string<symbol>,
    "action": "buy" | "sell" | "long" | "short",
    "quantity": float<quantity> (可选),
    "percentage": float<percentage> (可选, 0-100),
    "usdt_amount": float<usdt_amount> (可选),
    "close_position": bool<close_position> (可选, 仅 long/short 有效, 默认 false)
}

⚠️ 'quantity'、'percentage'、'usdt_amount' 三者至少提供一个。`
