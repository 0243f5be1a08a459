package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

type WebhookMessage struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Client posts to a Discord webhook. A client without a URL sends nothing.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

func (c *Client) SendMessage(ctx context.Context, msg WebhookMessage) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// ImportReport summarises one run of the schedule import job.
type ImportReport struct {
	RunID       string
	VersionID   int
	VersionName string
	SourceURL   string
	Rows        map[string]int
	Pruned      int
	Duration    time.Duration
	Err         error
}

// NotifyImport posts a success or failure embed for an import run.
func (c *Client) NotifyImport(ctx context.Context, r ImportReport) error {
	embed := Embed{
		Timestamp: time.Now(),
		Fields: []Field{
			{Name: "Run", Value: r.RunID, Inline: true},
			{Name: "Duration", Value: r.Duration.Round(time.Second).String(), Inline: true},
		},
	}
	if r.VersionID > 0 {
		embed.Fields = append(embed.Fields, Field{Name: "Version", Value: fmt.Sprintf("%d", r.VersionID), Inline: true})
	}

	if r.Err != nil {
		embed.Title = "🚨 GTFS import failed"
		embed.Description = r.Err.Error()
		embed.Color = getColorForLevel("ERROR")
	} else {
		embed.Title = "✅ GTFS import completed"
		embed.Description = r.VersionName
		embed.Color = getColorForLevel("INFO")

		tables := make([]string, 0, len(r.Rows))
		for table := range r.Rows {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			embed.Fields = append(embed.Fields, Field{
				Name:   table,
				Value:  fmt.Sprintf("%d", r.Rows[table]),
				Inline: true,
			})
		}
		if r.Pruned > 0 {
			embed.Fields = append(embed.Fields, Field{Name: "Pruned versions", Value: fmt.Sprintf("%d", r.Pruned), Inline: true})
		}
	}

	return c.SendMessage(ctx, WebhookMessage{Embeds: []Embed{embed}})
}

func getColorForLevel(level string) int {
	switch level {
	case "ERROR":
		return 0xFF0000 // Red
	case "FATAL":
		return 0x8B0000 // Dark Red
	case "WARN":
		return 0xFFA500 // Orange
	case "INFO":
		return 0x2ECC71 // Green
	default:
		return 0x808080 // Gray
	}
}
