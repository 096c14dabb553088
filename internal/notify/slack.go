// Package notify posts run notifications to a Slack incoming webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/johndauphine/immo-etl/internal/logging"
	"github.com/johndauphine/immo-etl/internal/version"
)

const (
	colorGood    = "#36a64f"
	colorWarning = "#ffc107"
	colorDanger  = "#dc3545"

	maxErrorLength   = 500
	maxListedSamples = 3
)

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// Notifier sends notifications. A notifier without a usable config is a
// no-op.
type Notifier struct {
	config *SlackConfig
	client *http.Client
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a colour coded message block.
type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Title  string  `json:"title,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

// Field is a title/value pair of an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a notifier. cfg may be nil.
func New(cfg *SlackConfig) *Notifier {
	return &Notifier{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsEnabled reports whether notifications will be sent.
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// RunStarted announces a run.
func (n *Notifier) RunStarted(runID, dataset, target string) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(SlackMessage{
		IconEmoji: ":rocket:",
		Attachments: []Attachment{{
			Color: colorGood,
			Title: "ETL Run Started",
			Fields: []Field{
				{Title: "Run ID", Value: runID, Short: true},
				{Title: "Dataset", Value: dataset, Short: true},
				{Title: "Target", Value: target, Short: true},
			},
			Footer: footer(),
			Ts:     time.Now().Unix(),
		}},
	})
}

// RunCompleted reports a run without record errors.
func (n *Notifier) RunCompleted(runID string, startTime time.Time, duration time.Duration, extracted, loaded int64) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(SlackMessage{
		IconEmoji: ":white_check_mark:",
		Attachments: []Attachment{{
			Color: colorGood,
			Title: "ETL Run Completed",
			Fields: []Field{
				{Title: "Run ID", Value: runID, Short: true},
				{Title: "Started", Value: startTime.UTC().Format(time.RFC3339), Short: true},
				{Title: "Duration", Value: formatDuration(duration), Short: true},
				{Title: "Extracted", Value: formatNumberWithCommas(extracted), Short: true},
				{Title: "Loaded", Value: formatNumberWithCommas(loaded), Short: true},
				{Title: "Throughput", Value: throughput(loaded, duration), Short: true},
			},
			Footer: footer(),
			Ts:     time.Now().Unix(),
		}},
	})
}

// RunCompletedWithErrors reports a run where some records were rejected.
// samples are individual error messages; only the first few are listed.
func (n *Notifier) RunCompletedWithErrors(runID string, startTime time.Time, duration time.Duration, loaded, recordErrors int64, samples []string) error {
	if !n.IsEnabled() {
		return nil
	}
	return n.send(SlackMessage{
		IconEmoji: ":warning:",
		Attachments: []Attachment{{
			Color: colorWarning,
			Title: "ETL Run Completed With Errors",
			Fields: []Field{
				{Title: "Run ID", Value: runID, Short: true},
				{Title: "Started", Value: startTime.UTC().Format(time.RFC3339), Short: true},
				{Title: "Duration", Value: formatDuration(duration), Short: true},
				{Title: "Loaded", Value: formatNumberWithCommas(loaded), Short: true},
				{Title: "Record Errors", Value: formatNumberWithCommas(recordErrors), Short: true},
				{Title: "Samples", Value: summarize(samples), Short: false},
			},
			Footer: footer(),
			Ts:     time.Now().Unix(),
		}},
	})
}

// RunFailed reports a run that aborted.
func (n *Notifier) RunFailed(runID string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength] + "..."
	}
	return n.send(SlackMessage{
		IconEmoji: ":x:",
		Attachments: []Attachment{{
			Color: colorDanger,
			Title: "ETL Run Failed",
			Fields: []Field{
				{Title: "Run ID", Value: runID, Short: true},
				{Title: "Duration", Value: formatDuration(duration), Short: true},
				{Title: "Error", Value: msg, Short: false},
			},
			Footer: footer(),
			Ts:     time.Now().Unix(),
		}},
	})
}

func (n *Notifier) send(msg SlackMessage) error {
	msg.Channel = n.config.Channel
	msg.Username = n.getUsername()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}
	resp, err := n.client.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending slack notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	logging.Debug("Slack notification sent: %s", msg.Attachments[0].Title)
	return nil
}

func (n *Notifier) getUsername() string {
	if n.config != nil && n.config.Username != "" {
		return n.config.Username
	}
	return version.Name
}

func footer() string {
	return version.Name + " " + version.Version
}

func summarize(samples []string) string {
	if len(samples) == 0 {
		return "No details recorded"
	}
	if len(samples) <= maxListedSamples {
		return strings.Join(samples, "\n")
	}
	return fmt.Sprintf("%s\n... and %d more", strings.Join(samples[:maxListedSamples], "\n"), len(samples)-maxListedSamples)
}

func throughput(rows int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return formatNumberWithCommas(int64(float64(rows)/d.Seconds())) + " rows/sec"
}

func formatNumberWithCommas(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
