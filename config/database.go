package config

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"tvbridge/crypto"
	"tvbridge/pkg/logger"
)

// Database 持久层，同一套代码兼容 MySQL 和 SQLite
// DSN 含 "@tcp(" 视为 MySQL，否则按 SQLite 文件路径处理
type Database struct {
	db            *sql.DB
	cryptoService *crypto.Service
	isMySQL       bool
}

// Strategy 策略配置: 信号只携带动作，交易细节全部由策略决定
type Strategy struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	TradingPair string    `json:"trading_pair"` // 形如 BTC/USDT
	MarketType  string    `json:"market_type"`  // spot | futures
	Leverage    int       `json:"leverage"`
	RiskType    string    `json:"risk_type"`  // fixed_amount | percentage
	RiskValue   float64   `json:"risk_value"` // 金额或百分比
	IsActive    bool      `json:"is_active"`
	Exchange    string    `json:"exchange_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExchangeAccount 交易所账户凭证，APIKey/SecretKey 加密落库
type ExchangeAccount struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Exchange  string    `json:"exchange_name"`
	APIKey    string    `json:"api_key"`
	SecretKey string    `json:"-"`
	Testnet   bool      `json:"testnet"`
	CreatedAt time.Time `json:"created_at"`
}

// SignalLog 信号执行记录
type SignalLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Quantity   string    `json:"quantity"`
	Status     string    `json:"status"` // executed | rejected | error
	Message    string    `json:"message"`
	OrderID    int64     `json:"order_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDatabase 打开数据库连接并初始化表结构
func NewDatabase(dsn string) (*Database, error) {
	isMySQL := strings.Contains(dsn, "@tcp(")

	var (
		db  *sql.DB
		err error
	)
	if isMySQL {
		db, err = sql.Open("mysql", dsn+"?parseTime=true&charset=utf8mb4")
		if err != nil {
			return nil, fmt.Errorf("打开 MySQL 连接失败: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(3 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	} else {
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
		}
		// 单写多读场景下 WAL 的并发表现远好于默认回滚日志模式
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
		}
		if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
			return nil, fmt.Errorf("设置同步模式失败: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	d := &Database{db: db, isMySQL: isMySQL}
	if err := d.createTables(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	if isMySQL {
		logger.Info("✅ MySQL 数据库已连接")
	} else {
		logger.Info("✅ SQLite 数据库已就绪", zap.String("path", dsn))
	}
	return d, nil
}

// SetCryptoService 注入加密服务，之后写入的交易所密钥自动加密
func (d *Database) SetCryptoService(cs *crypto.Service) {
	d.cryptoService = cs
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) createTables() error {
	var stmts []string
	if d.isMySQL {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS strategies (
				id VARCHAR(36) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				name VARCHAR(128) NOT NULL,
				trading_pair VARCHAR(32) NOT NULL,
				market_type VARCHAR(16) NOT NULL DEFAULT 'spot',
				leverage INT NOT NULL DEFAULT 1,
				risk_type VARCHAR(16) NOT NULL,
				risk_value DOUBLE NOT NULL,
				is_active TINYINT(1) NOT NULL DEFAULT 1,
				exchange_name VARCHAR(32) NOT NULL DEFAULT 'binance',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				INDEX idx_strategies_user (user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS exchanges (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				exchange_name VARCHAR(32) NOT NULL,
				api_key TEXT NOT NULL,
				api_secret TEXT NOT NULL,
				testnet TINYINT(1) NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				UNIQUE KEY uniq_user_exchange (user_id, exchange_name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS signal_logs (
				id VARCHAR(36) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				strategy_id VARCHAR(36) NOT NULL,
				symbol VARCHAR(32) NOT NULL,
				action VARCHAR(16) NOT NULL,
				quantity VARCHAR(32) NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL,
				message TEXT,
				order_id BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				INDEX idx_signal_logs_user (user_id, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	} else {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS strategies (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trading_pair TEXT NOT NULL,
				market_type TEXT NOT NULL DEFAULT 'spot',
				leverage INTEGER NOT NULL DEFAULT 1,
				risk_type TEXT NOT NULL,
				risk_value REAL NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				exchange_name TEXT NOT NULL DEFAULT 'binance',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_strategies_user ON strategies(user_id)`,
			`CREATE TABLE IF NOT EXISTS exchanges (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				exchange_name TEXT NOT NULL,
				api_key TEXT NOT NULL,
				api_secret TEXT NOT NULL,
				testnet INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(user_id, exchange_name)
			)`,
			`CREATE TABLE IF NOT EXISTS signal_logs (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				strategy_id TEXT NOT NULL,
				symbol TEXT NOT NULL,
				action TEXT NOT NULL,
				quantity TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				message TEXT,
				order_id INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_signal_logs_user ON signal_logs(user_id, created_at)`,
		}
	}

	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ===== 策略 =====

// GetStrategy 按 (strategyID, userID) 查询策略，跨用户查询返回 sql.ErrNoRows
func (d *Database) GetStrategy(userID, strategyID string) (*Strategy, error) {
	row := d.db.QueryRow(`SELECT id, user_id, name, trading_pair, market_type, leverage,
		risk_type, risk_value, is_active, exchange_name, created_at, updated_at
		FROM strategies WHERE id = ? AND user_id = ?`, strategyID, userID)
	return scanStrategy(row)
}

// ListStrategies 返回用户全部策略
func (d *Database) ListStrategies(userID string) ([]*Strategy, error) {
	rows, err := d.db.Query(`SELECT id, user_id, name, trading_pair, market_type, leverage,
		risk_type, risk_value, is_active, exchange_name, created_at, updated_at
		FROM strategies WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询策略列表失败: %w", err)
	}
	defer rows.Close()

	var out []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateStrategy 创建策略，ID 为空时生成 UUID
func (d *Database) CreateStrategy(s *Strategy) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := d.db.Exec(`INSERT INTO strategies
		(id, user_id, name, trading_pair, market_type, leverage, risk_type, risk_value, is_active, exchange_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Name, s.TradingPair, s.MarketType, s.Leverage,
		s.RiskType, s.RiskValue, s.IsActive, s.Exchange)
	if err != nil {
		return fmt.Errorf("创建策略失败: %w", err)
	}
	return nil
}

// UpdateStrategy 更新策略（只允许本人更新）
func (d *Database) UpdateStrategy(s *Strategy) error {
	res, err := d.db.Exec(`UPDATE strategies SET name = ?, trading_pair = ?, market_type = ?,
		leverage = ?, risk_type = ?, risk_value = ?, is_active = ?, exchange_name = ?,
		updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		s.Name, s.TradingPair, s.MarketType, s.Leverage, s.RiskType, s.RiskValue,
		s.IsActive, s.Exchange, s.ID, s.UserID)
	if err != nil {
		return fmt.Errorf("更新策略失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteStrategy 删除策略
func (d *Database) DeleteStrategy(userID, strategyID string) error {
	res, err := d.db.Exec(`DELETE FROM strategies WHERE id = ? AND user_id = ?`, strategyID, userID)
	if err != nil {
		return fmt.Errorf("删除策略失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*Strategy, error) {
	var s Strategy
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.TradingPair, &s.MarketType, &s.Leverage,
		&s.RiskType, &s.RiskValue, &s.IsActive, &s.Exchange, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ===== 交易所账户 =====

// GetExchange 查询用户在指定交易所的凭证，返回前自动解密
func (d *Database) GetExchange(userID, exchangeName string) (*ExchangeAccount, error) {
	var e ExchangeAccount
	err := d.db.QueryRow(`SELECT id, user_id, exchange_name, api_key, api_secret, testnet, created_at
		FROM exchanges WHERE user_id = ? AND exchange_name = ?`, userID, exchangeName).
		Scan(&e.ID, &e.UserID, &e.Exchange, &e.APIKey, &e.SecretKey, &e.Testnet, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if d.cryptoService != nil {
		if e.APIKey, err = d.cryptoService.Decrypt(e.APIKey); err != nil {
			return nil, fmt.Errorf("解密 API Key 失败: %w", err)
		}
		if e.SecretKey, err = d.cryptoService.Decrypt(e.SecretKey); err != nil {
			return nil, fmt.Errorf("解密 Secret Key 失败: %w", err)
		}
	}
	return &e, nil
}

// UpsertExchange 保存交易所凭证，已存在则覆盖，密钥加密后落库
func (d *Database) UpsertExchange(e *ExchangeAccount) error {
	apiKey, secretKey := e.APIKey, e.SecretKey
	if d.cryptoService != nil {
		var err error
		if apiKey, err = d.cryptoService.Encrypt(apiKey); err != nil {
			return fmt.Errorf("加密 API Key 失败: %w", err)
		}
		if secretKey, err = d.cryptoService.Encrypt(secretKey); err != nil {
			return fmt.Errorf("加密 Secret Key 失败: %w", err)
		}
	}

	var err error
	if d.isMySQL {
		_, err = d.db.Exec(`INSERT INTO exchanges (user_id, exchange_name, api_key, api_secret, testnet)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE api_key = VALUES(api_key), api_secret = VALUES(api_secret),
			testnet = VALUES(testnet), updated_at = CURRENT_TIMESTAMP`,
			e.UserID, e.Exchange, apiKey, secretKey, e.Testnet)
	} else {
		_, err = d.db.Exec(`INSERT INTO exchanges (user_id, exchange_name, api_key, api_secret, testnet)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, exchange_name) DO UPDATE SET api_key = excluded.api_key,
			api_secret = excluded.api_secret, testnet = excluded.testnet, updated_at = CURRENT_TIMESTAMP`,
			e.UserID, e.Exchange, apiKey, secretKey, e.Testnet)
	}
	if err != nil {
		return fmt.Errorf("保存交易所凭证失败: %w", err)
	}
	return nil
}

// ListExchanges 返回用户配置的全部交易所账户，APIKey 已解密（SecretKey 不返回）
func (d *Database) ListExchanges(userID string) ([]*ExchangeAccount, error) {
	rows, err := d.db.Query(`SELECT id, user_id, exchange_name, api_key, testnet, created_at
		FROM exchanges WHERE user_id = ? ORDER BY exchange_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询交易所列表失败: %w", err)
	}
	defer rows.Close()

	var out []*ExchangeAccount
	for rows.Next() {
		var e ExchangeAccount
		if err := rows.Scan(&e.ID, &e.UserID, &e.Exchange, &e.APIKey, &e.Testnet, &e.CreatedAt); err != nil {
			return nil, err
		}
		if d.cryptoService != nil {
			if e.APIKey, err = d.cryptoService.Decrypt(e.APIKey); err != nil {
				return nil, fmt.Errorf("解密 API Key 失败: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteExchange 删除交易所凭证
func (d *Database) DeleteExchange(userID, exchangeName string) error {
	res, err := d.db.Exec(`DELETE FROM exchanges WHERE user_id = ? AND exchange_name = ?`, userID, exchangeName)
	if err != nil {
		return fmt.Errorf("删除交易所凭证失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ===== 信号日志 =====

// SaveSignalLog 写入一条信号执行记录
func (d *Database) SaveSignalLog(l *SignalLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := d.db.Exec(`INSERT INTO signal_logs
		(id, user_id, strategy_id, symbol, action, quantity, status, message, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.StrategyID, l.Symbol, l.Action, l.Quantity, l.Status, l.Message, l.OrderID)
	if err != nil {
		return fmt.Errorf("写入信号日志失败: %w", err)
	}
	return nil
}

// ListSignalLogs 按时间倒序返回用户最近的信号记录
func (d *Database) ListSignalLogs(userID string, limit int) ([]*SignalLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := d.db.Query(`SELECT id, user_id, strategy_id, symbol, action, quantity, status, message, order_id, created_at
		FROM signal_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询信号日志失败: %w", err)
	}
	defer rows.Close()

	var out []*SignalLog
	for rows.Next() {
		var l SignalLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.StrategyID, &l.Symbol, &l.Action,
			&l.Quantity, &l.Status, &l.Message, &l.OrderID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
