package models

// TelegramConfig stores the bot credentials and notification settings
// for deal alerts.
type TelegramConfig struct {
	IsEnabled bool   `json:"is_enabled"`
	BotToken  string `json:"bot_token"`
	ChatID    string `json:"chat_id"`
	MinScore  int    `json:"min_score"` // only alert on deals at or above this score
}

// IsOpportunityAllowed checks if an opportunity qualifies for a
// notification under the configured filter.
func (c *TelegramConfig) IsOpportunityAllowed(opp *Opportunity) bool {
	if c == nil || !c.IsEnabled {
		return false
	}
	return opp.DealScore >= c.MinScore
}
