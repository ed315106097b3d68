package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"tvbridge/pkg/logger"
)

// Notifier Telegram 通知器
// token 为空或初始化失败时处于禁用状态，所有方法安全空操作，
// 通知失败绝不影响交易流程
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New 创建通知器，token 为空则返回禁用实例
func New(token string, chatID int64) *Notifier {
	if token == "" || chatID == 0 {
		return &Notifier{}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Warn("⚠️ Telegram Bot 初始化失败，通知已禁用", zap.Error(err))
		return &Notifier{}
	}
	logger.Info("✅ Telegram 通知已启用", zap.String("bot", bot.Self.UserName))
	return &Notifier{bot: bot, chatID: chatID}
}

// OrderExecuted 订单成交通知
func (n *Notifier) OrderExecuted(summary string, orderID int64) {
	n.send(fmt.Sprintf("%s\n订单号: %d", summary, orderID))
}

// SignalRejected 信号被校验拒绝的通知
func (n *Notifier) SignalRejected(symbol, reason string) {
	n.send(fmt.Sprintf("🚫 %s 信号被拒绝\n%s", symbol, reason))
}

// SubmitFailed 订单提交到交易所失败的通知
func (n *Notifier) SubmitFailed(symbol string, err error) {
	n.send(fmt.Sprintf("❌ %s 订单提交失败: %v", symbol, err))
}

func (n *Notifier) send(text string) {
	if n.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		logger.Warn("⚠️ Telegram 消息发送失败", zap.Error(err))
	}
}
