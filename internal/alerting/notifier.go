package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/classify"
)

const (
	colorGreen = 0x00ff00
	colorRed   = 0xff0000

	footerText = "Social Sentiment Processor • Powered by LunarCrush"
)

// Alert describes one qualifying sentiment change in a processing run.
type Alert struct {
	Symbol            string
	Name              string
	Sentiment         decimal.Decimal
	PreviousSentiment *decimal.Decimal
	ChangeType        classify.ChangeType
	Message           string
	Price             decimal.Decimal
	PercentChange24h  decimal.Decimal
	Timestamp         time.Time
}

// Notifier delivers a batch of alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// DiscordNotifier posts an embed summary to a Discord-compatible webhook.
type DiscordNotifier struct {
	webhookURL string
	maxFields  int
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a webhook notifier.
func NewDiscordNotifier(webhookURL string, maxFields int, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxFields <= 0 {
		maxFields = 10
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		maxFields:  maxFields,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
	Footer      embedFooter  `json:"footer"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Notify sends the whole batch as a single embed. The itemised field list is
// truncated to maxFields entries; the description still carries the full count.
func (n *DiscordNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embed{n.buildEmbed(alerts)}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook failed: status %d", resp.StatusCode)
	}

	n.logger.Info().Int("alerts", len(alerts)).Msg("alert batch delivered")
	return nil
}

func (n *DiscordNotifier) buildEmbed(alerts []Alert) embed {
	noun := "changes"
	if len(alerts) == 1 {
		noun = "change"
	}

	color := colorGreen
	for _, alert := range alerts {
		if alert.ChangeType == classify.Drop {
			color = colorRed
			break
		}
	}

	itemised := alerts
	if len(itemised) > n.maxFields {
		itemised = itemised[:n.maxFields]
	}

	fields := make([]embedField, 0, len(itemised))
	for _, alert := range itemised {
		fields = append(fields, embedField{
			Name:   fmt.Sprintf("%s %s", alert.Symbol, alert.ChangeType.Glyph()),
			Value:  alert.Message,
			Inline: false,
		})
	}

	return embed{
		Title:       "🚨 Crypto Sentiment Alerts",
		Description: fmt.Sprintf("%d significant sentiment %s detected", len(alerts), noun),
		Color:       color,
		Fields:      fields,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      embedFooter{Text: footerText},
	}
}

var _ Notifier = (*DiscordNotifier)(nil)
