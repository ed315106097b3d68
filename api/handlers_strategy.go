package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	valid "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tvbridge/config"
	"tvbridge/exchange"
	"tvbridge/pkg/logger"
)

var validate = valid.New()

// strategyRequest 策略创建/更新载荷
type strategyRequest struct {
	UserID      string  `json:"user_id" validate:"required"`
	Name        string  `json:"name" validate:"required,max=128"`
	TradingPair string  `json:"trading_pair" validate:"required,contains=/"`
	MarketType  string  `json:"market_type" validate:"required,oneof=spot futures"`
	Leverage    int     `json:"leverage" validate:"omitempty,min=1,max=125"`
	RiskType    string  `json:"risk_type" validate:"required,oneof=fixed_amount percentage"`
	RiskValue   float64 `json:"risk_value" validate:"required,gt=0"`
	IsActive    *bool   `json:"is_active"`
	Exchange    string  `json:"exchange_name" validate:"omitempty,max=32"`
}

func (r *strategyRequest) toStrategy() *config.Strategy {
	s := &config.Strategy{
		UserID:      r.UserID,
		Name:        r.Name,
		TradingPair: r.TradingPair,
		MarketType:  r.MarketType,
		Leverage:    r.Leverage,
		RiskType:    r.RiskType,
		RiskValue:   r.RiskValue,
		IsActive:    true,
		Exchange:    r.Exchange,
	}
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
	if s.Leverage <= 0 {
		s.Leverage = 1
	}
	if s.Exchange == "" {
		s.Exchange = "binance"
	}
	return s
}

func (s *Server) handleListStrategies(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 user_id 参数"})
		return
	}
	list, err := s.db.ListStrategies(userID)
	if err != nil {
		logger.Error("❌ 查询策略列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询策略列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "载荷解析失败: " + err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数校验失败: " + err.Error()})
		return
	}

	strategy := req.toStrategy()
	if err := s.db.CreateStrategy(strategy); err != nil {
		logger.Error("❌ 创建策略失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建策略失败"})
		return
	}
	logger.Info("✅ 策略已创建",
		zap.String("id", strategy.ID),
		zap.String("name", strategy.Name),
		zap.String("pair", strategy.TradingPair))
	c.JSON(http.StatusCreated, strategy)
}

func (s *Server) handleUpdateStrategy(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "载荷解析失败: " + err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数校验失败: " + err.Error()})
		return
	}

	strategy := req.toStrategy()
	strategy.ID = c.Param("id")
	if err := s.db.UpdateStrategy(strategy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "策略不存在"})
			return
		}
		logger.Error("❌ 更新策略失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新策略失败"})
		return
	}
	c.JSON(http.StatusOK, strategy)
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 user_id 参数"})
		return
	}
	if err := s.db.DeleteStrategy(userID, c.Param("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "策略不存在"})
			return
		}
		logger.Error("❌ 删除策略失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除策略失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// exchangeRequest 交易所凭证载荷
type exchangeRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Exchange  string `json:"exchange_name" validate:"required,max=32"`
	APIKey    string `json:"api_key" validate:"required"`
	SecretKey string `json:"api_secret" validate:"required"`
	Testnet   bool   `json:"testnet"`
}

func (s *Server) handleUpsertExchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "载荷解析失败: " + err.Error()})
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数校验失败: " + err.Error()})
		return
	}

	err := s.db.UpsertExchange(&config.ExchangeAccount{
		UserID:    req.UserID,
		Exchange:  req.Exchange,
		APIKey:    req.APIKey,
		SecretKey: req.SecretKey,
		Testnet:   req.Testnet,
	})
	if err != nil {
		logger.Error("❌ 保存交易所凭证失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存交易所凭证失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// handleListExchanges 交易所账户列表，API Key 打码后返回
func (s *Server) handleListExchanges(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 user_id 参数"})
		return
	}
	accounts, err := s.db.ListExchanges(userID)
	if err != nil {
		logger.Error("❌ 查询交易所列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询交易所列表失败"})
		return
	}
	for _, a := range accounts {
		a.APIKey = maskKey(a.APIKey)
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": accounts})
}

// maskKey 只保留前4位，其余打码
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

func (s *Server) handleDeleteExchange(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 user_id 参数"})
		return
	}
	if err := s.db.DeleteExchange(userID, c.Param("name")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "交易所凭证不存在"})
			return
		}
		logger.Error("❌ 删除交易所凭证失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除交易所凭证失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleTestConnection 用已保存的凭证拉一次账户余额验证连通性
func (s *Server) handleTestConnection(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Exchange string `json:"exchange_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "载荷解析失败: " + err.Error()})
		return
	}

	account, err := s.db.GetExchange(req.UserID, req.Exchange)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "交易所凭证不存在"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询交易所凭证失败"})
		return
	}

	gateway := s.newGateway(account.APIKey, account.SecretKey, account.Testnet)
	balances, err := gateway.AccountBalances(c.Request.Context(), exchange.MarketSpot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "❌ 连接失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "assets": len(balances)})
}

func (s *Server) handleListSignalLogs(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 user_id 参数"})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 不是合法整数"})
			return
		}
		limit = parsed
	}
	logs, err := s.db.ListSignalLogs(userID, limit)
	if err != nil {
		logger.Error("❌ 查询信号日志失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询信号日志失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}
