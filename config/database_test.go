package config

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvbridge/crypto"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStrategyCRUD(t *testing.T) {
	db := newTestDatabase(t)

	s := &Strategy{
		UserID:      "user-1",
		Name:        "BTC 趋势",
		TradingPair: "BTC/USDT",
		MarketType:  "spot",
		Leverage:    1,
		RiskType:    "fixed_amount",
		RiskValue:   100,
		IsActive:    true,
		Exchange:    "binance",
	}
	require.NoError(t, db.CreateStrategy(s))
	require.NotEmpty(t, s.ID)

	got, err := db.GetStrategy("user-1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", got.TradingPair)
	assert.True(t, got.IsActive)

	// 跨用户查询不可见
	_, err = db.GetStrategy("user-2", s.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	s.IsActive = false
	s.RiskValue = 50
	require.NoError(t, db.UpdateStrategy(s))
	got, err = db.GetStrategy("user-1", s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 50.0, got.RiskValue)

	list, err := db.ListStrategies("user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, db.DeleteStrategy("user-1", s.ID))
	assert.ErrorIs(t, db.DeleteStrategy("user-1", s.ID), sql.ErrNoRows)
}

func TestExchangeCredentialsEncryptedAtRest(t *testing.T) {
	db := newTestDatabase(t)
	cs, err := crypto.NewService("test-passphrase")
	require.NoError(t, err)
	db.SetCryptoService(cs)

	require.NoError(t, db.UpsertExchange(&ExchangeAccount{
		UserID:    "user-1",
		Exchange:  "binance",
		APIKey:    "plain-api-key",
		SecretKey: "plain-secret",
		Testnet:   true,
	}))

	// 读出来是明文
	got, err := db.GetExchange("user-1", "binance")
	require.NoError(t, err)
	assert.Equal(t, "plain-api-key", got.APIKey)
	assert.Equal(t, "plain-secret", got.SecretKey)
	assert.True(t, got.Testnet)

	// 落库的是密文
	var stored string
	require.NoError(t, db.db.QueryRow(
		`SELECT api_secret FROM exchanges WHERE user_id = ? AND exchange_name = ?`,
		"user-1", "binance").Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, "enc:v1:"), "密钥应加密存储: %s", stored)

	// 再次保存覆盖旧凭证
	require.NoError(t, db.UpsertExchange(&ExchangeAccount{
		UserID: "user-1", Exchange: "binance",
		APIKey: "rotated-key", SecretKey: "rotated-secret",
	}))
	got, err = db.GetExchange("user-1", "binance")
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", got.APIKey)
}

func TestSignalLogs(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.SaveSignalLog(&SignalLog{
		UserID: "user-1", StrategyID: "s-1", Symbol: "BTCUSDT",
		Action: "buy", Quantity: "0.00200", Status: "executed", OrderID: 42,
	}))
	require.NoError(t, db.SaveSignalLog(&SignalLog{
		UserID: "user-1", StrategyID: "s-1", Symbol: "BTCUSDT",
		Action: "sell", Status: "rejected", Message: "❌ 余额不足",
	}))

	logs, err := db.ListSignalLogs("user-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	empty, err := db.ListSignalLogs("user-2", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
