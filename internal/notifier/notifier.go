// Package notifier subscribes to the event bus and pushes a human-readable
// line to Telegram for the event types an operator needs to see in real
// time: emergency flats, failed stop-loss updates, AI-reviewer outages,
// failed orders, and position opens and closes (§6 ambient ops).
package notifier

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kairoslabs/perpsentinel/internal/database"
	"github.com/kairoslabs/perpsentinel/internal/events"
	"github.com/kairoslabs/perpsentinel/internal/store"
	"github.com/rs/zerolog"
)

// Notifier pushes formatted event messages to one or more Telegram chats.
type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	log     zerolog.Logger
}

// alertTypes are the event types worth waking a human up for.
var alertTypes = []events.EventType{
	events.EmergencyFlat,
	events.StopLossUpdateFailed,
	events.AIReviewerUnavailable,
	events.OrderFailed,
	events.PositionOpened,
	events.PositionClosed,
}

// New creates a Notifier bound to the given bot token and chat IDs. If
// token is empty, notifications are disabled and New returns nil, nil so
// callers can skip wiring without a special case.
func New(token string, chatIDs []int64, log zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	return &Notifier{
		bot:     bot,
		chatIDs: chatIDs,
		log:     log.With().Str("component", "notifier").Logger(),
	}, nil
}

// Attach subscribes the notifier to the alert-worthy subset of the bus.
func (n *Notifier) Attach(bus *events.Bus) func() {
	return bus.Subscribe(alertTypes, n.handle)
}

func (n *Notifier) handle(event *events.Event) {
	text := format(event)
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send telegram notification")
		}
	}
}

// SendText pushes an arbitrary, already-formatted message to every
// configured chat, used by the one-shot --daily-report/--weekly-report
// CLI paths (§1's "daily/weekly reporting generation" is an external
// collaborator; this engine only formats the PnL summary it already has
// in `auto_trades` and hands the text to the same bot connection).
func (n *Notifier) SendText(text string) {
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send telegram report")
		}
	}
}

// DailyReport formats a trailing-24h realized PnL summary from the signals
// store's auto_trades table.
func DailyReport(stores *database.Stores, now time.Time) (string, error) {
	return periodReport(stores, now.Add(-24*time.Hour), "Daily")
}

// WeeklyReport formats a trailing-7d realized PnL summary.
func WeeklyReport(stores *database.Stores, now time.Time) (string, error) {
	return periodReport(stores, now.AddDate(0, 0, -7), "Weekly")
}

func periodReport(stores *database.Stores, since time.Time, label string) (string, error) {
	trades, pnlFraction, err := store.DailyPnLSummary(stores.Signals, since)
	if err != nil {
		return "", fmt.Errorf("failed to summarize pnl for %s report: %w", label, err)
	}
	return fmt.Sprintf("%s report: %d closed trades, %.2f%% realized PnL", label, trades, pnlFraction*100), nil
}

func format(event *events.Event) string {
	symbol, _ := event.Data["symbol"].(string)
	if symbol != "" {
		return fmt.Sprintf("[%s] %s %s", event.Component, event.Type, symbol)
	}
	return fmt.Sprintf("[%s] %s", event.Component, event.Type)
}
