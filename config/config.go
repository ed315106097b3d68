package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tvbridge/pkg/logger"
)

// Config 进程级配置，全部来自环境变量
type Config struct {
	Port             string // API 监听端口
	DatabaseDSN      string // MySQL DSN 或 SQLite 文件路径
	EncryptionKey    string // API 密钥落库加密口令
	TelegramBotToken string // 为空则不启用 Telegram 通知
	TelegramChatID   int64
	LogDir           string
	Debug            bool
}

// Load 读取环境变量（.env 文件存在时先加载），缺省值保证本地起服务零配置
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		logger.Info("📋 已加载 .env 配置文件")
	}

	cfg := &Config{
		Port:             envOr("API_PORT", "8080"),
		DatabaseDSN:      envOr("DATABASE_DSN", "tvbridge.db"),
		EncryptionKey:    os.Getenv("DATA_ENCRYPTION_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogDir:           envOr("LOG_DIR", "logs"),
		Debug:            os.Getenv("DEBUG") == "true",
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Warn("⚠️ TELEGRAM_CHAT_ID 不是合法整数，已忽略", zap.String("value", raw))
		} else {
			cfg.TelegramChatID = chatID
		}
	}

	if cfg.EncryptionKey == "" {
		logger.Warn("⚠️ 未设置 DATA_ENCRYPTION_KEY，交易所密钥将以明文落库")
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
