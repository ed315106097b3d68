package main

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tvbridge/api"
	"tvbridge/config"
	"tvbridge/crypto"
	"tvbridge/exchange"
	"tvbridge/notifier"
	"tvbridge/pkg/logger"
)

func main() {
	// 日志器要在配置加载前就绪，配置阶段的告警不能丢
	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_DIR"), os.Getenv("DEBUG") == "true")
	defer logger.Sync()

	cfg := config.Load()

	logger.Info("🚀 TV Bridge 启动中...")

	db, err := config.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Error("❌ 数据库初始化失败", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.EncryptionKey != "" {
		cs, err := crypto.NewService(cfg.EncryptionKey)
		if err != nil {
			logger.Error("❌ 加密服务初始化失败", zap.Error(err))
			os.Exit(1)
		}
		db.SetCryptoService(cs)
	}

	n := notifier.New(cfg.TelegramBotToken, cfg.TelegramChatID)

	factory := func(apiKey, secretKey string, testnet bool) exchange.Gateway {
		return exchange.NewBinanceGateway(apiKey, secretKey, testnet)
	}

	server := api.NewServer(db, n, factory, cfg.Port)
	if err := server.Run(); err != nil {
		logger.Error("❌ API 服务器退出", zap.Error(err))
		os.Exit(1)
	}
}
