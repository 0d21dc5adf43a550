package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/telebot.v3"

	"predictionmarket/internal/logger"
	"predictionmarket/internal/settlement"
)

// sender is the part of *telebot.Bot used for broadcasting.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// NotificationService broadcasts market news to a Telegram channel.
// All methods are safe to call on a nil *NotificationService.
type NotificationService struct {
	bot       sender
	mu        sync.Mutex
	channelID string
}

// NewNotificationService creates a new notification service
func NewNotificationService(botToken, channelID string) (*NotificationService, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}
	if channelID == "" {
		return nil, fmt.Errorf("telegram channel id not set")
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token: botToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &NotificationService{
		bot:       b,
		channelID: channelID,
	}, nil
}

// PublishNewMarket broadcasts a new market to the public channel
func (s *NotificationService) PublishNewMarket(m *settlement.Market) {
	if s == nil || m == nil {
		return
	}
	message := fmt.Sprintf("🆕 *New Market*\n\n*#%d* %s\n\n👤 Creator: `%s`\n⏰ Ends: %s\n💵 Min bet: %s\n\n🎯 Place your bets!",
		m.ID,
		escapeMarkdown(m.Question),
		shortAddress(m.Creator),
		m.Deadline.UTC().Format("2006-01-02 15:04 UTC"),
		escapeMarkdown(settlement.FormatUSDC(m.MinBet)))

	s.broadcast(message, "broadcast_new_market", m.ID)
}

// PublishResolution broadcasts a market resolution to the public channel
func (s *NotificationService) PublishResolution(m *settlement.Market, winners int) {
	if s == nil || m == nil {
		return
	}
	outcome := m.WinningSide()
	outcomeEmoji := "✅"
	if outcome == settlement.SideNo {
		outcomeEmoji = "❌"
	}

	message := fmt.Sprintf("🏁 *Market Resolved*\n\n*#%d* %s\n\n%s Outcome: *%s*\n📈 Settlement price: %s\n💰 Total Pool: %s",
		m.ID,
		escapeMarkdown(truncateString(m.Question, 80)),
		outcomeEmoji,
		outcome,
		escapeMarkdown(m.SettlementPrice.Text('f')),
		escapeMarkdown(settlement.FormatUSDC(m.TotalPool())))
	if m.ForfeitedAmount > 0 {
		message += fmt.Sprintf("\n\nNobody backed %s: %s forfeited\\.", outcome, escapeMarkdown(settlement.FormatUSDC(m.ForfeitedAmount)))
	} else {
		message += fmt.Sprintf("\n\n👥 %d winner\\(s\\) can claim now\\.", winners)
	}

	s.broadcast(message, "broadcast_resolution", m.ID)
}

// PublishClaim broadcasts a claimed payout to the public channel
func (s *NotificationService) PublishClaim(m *settlement.Market, user common.Address, p settlement.Payout) {
	if s == nil || m == nil {
		return
	}
	message := fmt.Sprintf("🏆 `%s` claimed %s on *#%d* %s",
		shortAddress(user),
		escapeMarkdown(settlement.FormatUSDC(p.Amount)),
		m.ID,
		escapeMarkdown(truncateString(m.Question, 50)))

	s.broadcast(message, "broadcast_claim", m.ID)
}

func (s *NotificationService) broadcast(message, action string, marketID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.bot.Send(s.getChannelRecipient(), message, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdownV2,
	})
	if err != nil {
		logger.Info("", "broadcast_error", fmt.Sprintf("channel=%s market_id=%d error=%v", s.channelID, marketID, err))
		return
	}
	logger.Debug("", action, fmt.Sprintf("market_id=%d channel=%s", marketID, s.channelID))
}

// getChannelRecipient returns the appropriate recipient for the configured channel
func (s *NotificationService) getChannelRecipient() telebot.Recipient {
	if strings.HasPrefix(s.channelID, "@") {
		return &telebot.Chat{Username: s.channelID}
	}
	return &telebot.Chat{ID: parseChannelID(s.channelID)}
}

// parseChannelID parses a channel ID string (supports numeric IDs)
func parseChannelID(channelID string) int64 {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// shortAddress renders 0x1234…abcd.
func shortAddress(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

// truncateString truncates a string to maxLen and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune("_*[]()~`>#+-=|{}.!\\", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
