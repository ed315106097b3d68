package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tvbridge/config"
	"tvbridge/exchange"
	"tvbridge/pkg/logger"
	"tvbridge/validator"
)

// webhookRequest 信号源发来的极简载荷: 只有身份和方向，
// 交易对、市场、杠杆、仓位规则全部由策略配置决定
type webhookRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	StrategyID    string `json:"strategy_id" binding:"required"`
	Action        string `json:"action" binding:"required"`
	ClosePosition bool   `json:"close_position"`
}

// handleWebhook 信号入口: 策略解析 -> 载荷补全 -> 校验 -> 下单 -> 记录
func (s *Server) handleWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "❌ 载荷解析失败: user_id、strategy_id、action 为必填字段",
		})
		return
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != "buy" && action != "sell" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "❌ action 只接受 buy 或 sell",
		})
		return
	}

	// 策略解析
	strategy, err := s.db.GetStrategy(req.UserID, req.StrategyID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "❌ 策略不存在"})
		return
	}
	if err != nil {
		logger.Error("❌ 查询策略失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "查询策略失败"})
		return
	}
	if !strategy.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "❌ 策略已停用"})
		return
	}

	// 交易所凭证
	account, err := s.db.GetExchange(req.UserID, strategy.Exchange)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "❌ 未配置交易所凭证: " + strategy.Exchange})
		return
	}
	if err != nil {
		logger.Error("❌ 查询交易所凭证失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "查询交易所凭证失败"})
		return
	}
	if account.APIKey == "" || account.SecretKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "❌ 交易所凭证不完整"})
		return
	}

	payload := buildPayload(strategy, action, req.ClosePosition)
	gateway := s.newGateway(account.APIKey, account.SecretKey, account.Testnet)

	logger.Info("📥 收到交易信号",
		zap.String("user_id", req.UserID),
		zap.String("strategy", strategy.Name),
		zap.String("symbol", payload.Symbol),
		zap.String("action", payload.Action),
		zap.Bool("close_position", payload.ClosePosition))

	// 同一策略的信号串行化: 锁覆盖余额读取到订单提交的全过程
	mu := s.locks.acquire(lockKey(req.UserID, req.StrategyID))
	mu.Lock()
	defer mu.Unlock()

	ctx := c.Request.Context()
	outcome := validator.New(gateway).Validate(ctx, payload)

	signalLog := &config.SignalLog{
		UserID:     req.UserID,
		StrategyID: req.StrategyID,
		Symbol:     payload.Symbol,
		Action:     payload.Action,
	}

	if !outcome.Valid {
		logger.Warn("🚫 信号被拒绝",
			zap.String("symbol", payload.Symbol),
			zap.String("kind", string(outcome.Kind)),
			zap.String("reason", outcome.Message))

		signalLog.Status = "rejected"
		signalLog.Message = outcome.Message
		s.saveSignalLog(signalLog)
		s.notifier.SignalRejected(payload.Symbol, outcome.Message)

		c.JSON(rejectionStatus(outcome), gin.H{
			"status":      "rejected",
			"message":     outcome.Message,
			"log_summary": outcome.Summary,
		})
		return
	}

	order := outcome.Order
	receipt, err := gateway.SubmitMarketOrder(ctx, exchange.OrderRequest{
		Symbol:     order.Symbol,
		Market:     order.Market,
		Side:       order.Side,
		Quantity:   order.Quantity,
		ReduceOnly: order.Market == exchange.MarketFutures && order.ClosePosition,
	})
	if err != nil {
		logger.Error("❌ 订单提交失败",
			zap.String("symbol", order.Symbol),
			zap.String("quantity", order.Quantity),
			zap.Error(err))

		signalLog.Status = "error"
		signalLog.Quantity = order.Quantity
		signalLog.Message = "订单提交失败: " + err.Error()
		s.saveSignalLog(signalLog)
		s.notifier.SubmitFailed(order.Symbol, err)

		c.JSON(http.StatusInternalServerError, gin.H{
			"status":      "error",
			"message":     "❌ 订单提交失败: " + err.Error(),
			"log_summary": outcome.Summary,
		})
		return
	}

	logger.Info("✅ 订单已成交",
		zap.Int64("order_id", receipt.OrderID),
		zap.String("symbol", receipt.Symbol),
		zap.String("executed_qty", receipt.ExecutedQty),
		zap.String("status", receipt.Status))

	signalLog.Status = "executed"
	signalLog.Quantity = order.Quantity
	signalLog.Message = outcome.Summary
	signalLog.OrderID = receipt.OrderID
	s.saveSignalLog(signalLog)
	s.notifier.OrderExecuted(outcome.Summary, receipt.OrderID)

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message":     outcome.Summary,
		"log_summary": outcome.Summary,
		"order_id":    receipt.OrderID,
	})
}

// buildPayload 用策略配置把方向信号补全成完整载荷
// 合约市场把 buy/sell 翻译成 long/short
func buildPayload(strategy *config.Strategy, action string, closePosition bool) *validator.Payload {
	p := &validator.Payload{
		Symbol: strings.ReplaceAll(strategy.TradingPair, "/", ""),
		Action: action,
	}

	if strategy.MarketType == "futures" {
		if action == "buy" {
			p.Action = "long"
		} else {
			p.Action = "short"
		}
		p.Leverage = strategy.Leverage
		p.ClosePosition = closePosition
	}

	switch strategy.RiskType {
	case "fixed_amount":
		p.USDTAmount = validator.FlexFloat(strategy.RiskValue)
	case "percentage":
		p.Percentage = validator.FlexFloat(strategy.RiskValue)
	}
	return p
}

// rejectionStatus 失败类别到 HTTP 状态码的映射
// 交易对不存在是配置问题报 400，交易所连不上是环境问题报 500，
// 其余都是信号/资金问题报 400
func rejectionStatus(outcome validator.Outcome) int {
	if outcome.Kind != validator.FailMarketData {
		return http.StatusBadRequest
	}
	for _, v := range outcome.Violations {
		if v.Kind == validator.ViolationSymbolNotFound {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) saveSignalLog(l *config.SignalLog) {
	if err := s.db.SaveSignalLog(l); err != nil {
		logger.Error("❌ 写入信号日志失败", zap.Error(err))
	}
}
