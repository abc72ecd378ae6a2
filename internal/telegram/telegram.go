package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"flipradar/server/internal/models"
	"flipradar/server/internal/queue"
)

const defaultAPIBase = "https://api.telegram.org"

type Service struct {
	logger  *logrus.Logger
	client  *http.Client
	config  *models.TelegramConfig
	apiBase string
}

func NewService(logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiBase: defaultAPIBase,
	}
}

func (s *Service) UpdateConfig(config *models.TelegramConfig) {
	s.config = config
}

// AttachQueue subscribes the service to the opportunity event stream.
// Deals below the configured score are dropped silently.
func (s *Service) AttachQueue(q *queue.OpportunityQueue) {
	q.Subscribe(func(opp *models.Opportunity) error {
		if !s.config.IsOpportunityAllowed(opp) {
			return nil
		}
		if err := s.NotifyOpportunity(opp); err != nil {
			s.logger.WithError(err).Error("Failed to send deal alert")
			return err
		}
		return nil
	})
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(message string) error {
	if !s.config.IsEnabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.config.BotToken)
	payload := map[string]interface{}{
		"chat_id":    s.config.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyOpportunity sends an alert about a freshly discovered deal
func (s *Service) NotifyOpportunity(opp *models.Opportunity) error {
	if !s.config.IsEnabled {
		return nil
	}

	if s.config.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	title := "<b>New Deal Found!</b>"
	if opp.Verdict == "HOT DEAL" {
		title = "<b>🔥 Hot Deal Found!</b>"
	}

	roi := 0.0
	if opp.RecommendedBuyPrice > 0 {
		roi = (opp.EstimatedSellPrice - opp.RecommendedBuyPrice) / opp.RecommendedBuyPrice * 100
	}

	message := fmt.Sprintf(
		"%s\n\n"+
			"🏷️ %s\n"+
			"🛒 %s\n"+
			"💰 Asking: $%.2f\n"+
			"✅ Max buy: $%.2f\n"+
			"📈 Est. sale: $%.2f (ROI %.0f%%)\n"+
			"📊 Score: %d/100 (%s)\n"+
			"⚡ Liquidity: %s, STR %.0f%%\n\n"+
			"🔗 <a href=\"%s\">View listing</a>",
		title,
		opp.Title,
		opp.Platform,
		opp.CurrentPrice,
		opp.RecommendedBuyPrice,
		opp.EstimatedSellPrice,
		roi,
		opp.DealScore,
		opp.Verdict,
		opp.Liquidity,
		opp.SellThroughRate*100,
		opp.URL,
	)

	return s.SendMessage(message)
}
