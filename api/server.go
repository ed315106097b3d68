package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tvbridge/config"
	"tvbridge/exchange"
	"tvbridge/notifier"
	"tvbridge/pkg/logger"
)

// GatewayFactory 由交易所凭证构造网关，测试时注入内存实现
type GatewayFactory func(apiKey, secretKey string, testnet bool) exchange.Gateway

// Server HTTP API 服务器
type Server struct {
	router     *gin.Engine
	db         *config.Database
	notifier   *notifier.Notifier
	newGateway GatewayFactory
	locks      *strategyLocks
	port       string
}

// NewServer 创建 API 服务器并注册路由
func NewServer(db *config.Database, n *notifier.Notifier, factory GatewayFactory, port string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:     gin.New(),
		db:         db,
		notifier:   n,
		newGateway: factory,
		locks:      &strategyLocks{},
		port:       port,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

// Run 启动 HTTP 服务（阻塞）
func (s *Server) Run() error {
	addr := ":" + s.port
	logger.Info("🚀 API 服务器启动", zap.String("addr", addr))
	return s.router.Run(addr)
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/webhook", s.handleWebhook)
		api.POST("/test-connection", s.handleTestConnection)
		api.GET("/logs", s.handleListSignalLogs)

		strategies := api.Group("/strategies")
		{
			strategies.GET("", s.handleListStrategies)
			strategies.POST("", s.handleCreateStrategy)
			strategies.PUT("/:id", s.handleUpdateStrategy)
			strategies.DELETE("/:id", s.handleDeleteStrategy)
		}

		exchanges := api.Group("/exchanges")
		{
			exchanges.GET("", s.handleListExchanges)
			exchanges.POST("", s.handleUpsertExchange)
			exchanges.DELETE("/:name", s.handleDeleteExchange)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// lockKey 策略锁的键
func lockKey(userID, strategyID string) string {
	return fmt.Sprintf("%s:%s", userID, strategyID)
}
