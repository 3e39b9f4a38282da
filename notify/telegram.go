package notify

import (
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"listing-factory/pipeline"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxListedProblems caps how many failed URLs a summary names
const maxListedProblems = 5

// Sender is the part of the bot API the notifier needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts run summaries to a Telegram chat
type Notifier struct {
	bot    Sender
	chatID int64
}

// NewTelegramNotifier connects to the bot API with token
func NewTelegramNotifier(token string, chatID int64) (*Notifier, error) {
	return NewTelegramNotifierWithEndpoint(token, tgbotapi.APIEndpoint, chatID)
}

// NewTelegramNotifierWithEndpoint connects to a bot API served at
// endpoint, a format string taking the token and the method name
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64) (*Notifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is required")
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log.Printf("Authorized on Telegram account %s\n", bot.Self.UserName)
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// NewNotifier wraps an existing sender
func NewNotifier(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// NotifyRun sends the summary of a run
func (n *Notifier) NotifyRun(summary *pipeline.Summary, sheetURL string) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatSummary(summary, sheetURL))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram summary: %w", err)
	}
	return nil
}

// FormatSummary renders a run summary as Telegram HTML
func FormatSummary(s *pipeline.Summary, sheetURL string) string {
	var b strings.Builder

	icon := "✅"
	if s.Failed > 0 || s.Partial > 0 {
		icon = "⚠️"
	}
	if s.Cancelled > 0 {
		icon = "⏹"
	}

	fmt.Fprintf(&b, "%s <b>Listing run finished</b> (%s)\n\n", icon, s.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Listings: %d\n", s.Total())
	fmt.Fprintf(&b, "Persisted: %d (%d new)\n", s.Persisted, s.Created)
	if s.Partial > 0 {
		fmt.Fprintf(&b, "Missing images: %d\n", s.Partial)
	}
	if s.Invalid > 0 {
		fmt.Fprintf(&b, "Invalid: %d\n", s.Invalid)
	}
	if s.Filtered > 0 {
		fmt.Fprintf(&b, "Filtered out: %d\n", s.Filtered)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	}
	if s.Cancelled > 0 {
		fmt.Fprintf(&b, "Cancelled: %d\n", s.Cancelled)
	}

	listed := 0
	for _, r := range s.Results {
		if r.Status != pipeline.StatusFailed && r.Status != pipeline.StatusPartial {
			continue
		}
		if listed == 0 {
			b.WriteString("\nProblems:\n")
		}
		if listed == maxListedProblems {
			b.WriteString("…\n")
			break
		}
		fmt.Fprintf(&b, "• %s: %s\n", html.EscapeString(r.SourceURL), html.EscapeString(r.Reason))
		listed++
	}

	if sheetURL != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">View spreadsheet</a>", html.EscapeString(sheetURL))
	}
	return b.String()
}
