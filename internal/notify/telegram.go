package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

const DefaultTelegramAPIURL = "https://api.telegram.org"

type Telegram struct {
	logger *logrus.Logger
	client *http.Client
	apiURL string
	token  string
	chatID string
}

func NewTelegram(apiURL, token, chatID string, logger *logrus.Logger) *Telegram {
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Telegram{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
	}
}

// SendMessage sends a message to the configured Telegram chat
func (t *Telegram) SendMessage(ctx context.Context, message string) error {
	if t.token == "" {
		return errors.New("Telegram bot token is not configured")
	}
	if t.chatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create Telegram request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
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

// NotifyRun sends a run summary
func (t *Telegram) NotifyRun(ctx context.Context, run *models.ScrapeRun) error {
	if err := t.SendMessage(ctx, FormatRunMessage(run)); err != nil {
		t.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to send run notification")
		return err
	}
	return nil
}

// FormatRunMessage renders a run as a Telegram HTML message.
func FormatRunMessage(run *models.ScrapeRun) string {
	title := "<b>✅ Daily snapshot landed</b>"
	if run.Status != models.RunStatusSucceeded {
		title = "<b>❌ Daily snapshot failed</b>"
	}
	if run.TestMode {
		title += " (test mode)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "📅 %s\n", run.RunDate)
	fmt.Fprintf(&b, "🔎 %d results, %d pages\n", run.ResultCount, run.PagesPlanned)
	fmt.Fprintf(&b, "🏠 %d of %d listings extracted\n", run.Extracted, run.Discovered)

	if run.Failed > 0 {
		kinds := make([]string, 0, len(run.FailuresByKind))
		for kind, n := range run.FailuresByKind {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "⚠️ %d skipped (%s)\n", run.Failed, strings.Join(kinds, ", "))
	}
	if run.ArtifactPath != "" {
		fmt.Fprintf(&b, "📦 %s\n", html.EscapeString(run.ArtifactPath))
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "\n<code>%s</code>", html.EscapeString(run.Error))
	}
	return b.String()
}
