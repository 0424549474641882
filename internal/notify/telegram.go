package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
)

// TelegramNotifier delivers new-property notifications to a Telegram chat.
// Delivery outcome is reported to the caller; the pipeline records it on the
// notification axis.
type TelegramNotifier struct {
	logger   *logrus.Logger
	client   *http.Client
	baseURL  string
	botToken string
	chatID   string
}

func NewTelegramNotifier(botToken, chatID string, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		logger:   logger,
		baseURL:  "https://api.telegram.org",
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends one property message.
func (n *TelegramNotifier) Notify(ctx context.Context, p models.CanonicalProperty) error {
	if n.botToken == "" {
		return errors.New("telegram bot token is not configured")
	}
	if n.chatID == "" {
		return errors.New("telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	payload := map[string]interface{}{
		"chat_id":    n.chatID,
		"text":       formatProperty(p),
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusNotFound:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		default:
			return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, string(body))
		}
	}

	n.logger.WithField("property_id", p.ID).Debug("Sent Telegram notification")
	return nil
}

func formatProperty(p models.CanonicalProperty) string {
	var b strings.Builder

	title := p.Title
	if title == "" {
		title = fmt.Sprintf("%d bed rental", p.Bedrooms)
	}
	fmt.Fprintf(&b, "<b>%s</b>\n", title)

	if p.PriceMin == p.PriceMax {
		fmt.Fprintf(&b, "£%d pcm\n", p.PriceMin)
	} else {
		fmt.Fprintf(&b, "£%d–£%d pcm across platforms\n", p.PriceMin, p.PriceMax)
	}

	location := p.Postcode
	if location == "" {
		location = p.Outcode
	}
	if p.Street != "" && location != "" {
		fmt.Fprintf(&b, "%s, %s\n", p.Street, location)
	} else if p.Street != "" || location != "" {
		fmt.Fprintf(&b, "%s%s\n", p.Street, location)
	}

	for _, s := range p.Sources {
		fmt.Fprintf(&b, "%s: %s\n", s.Platform.String(), s.URL)
	}

	return b.String()
}
