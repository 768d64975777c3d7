package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/moafunk/player/internal/media"
	"github.com/moafunk/player/internal/util"
)

// Webhook event names.
const (
	EventSilenceDetected  = "silence_detected"
	EventSilenceRecovered = "silence_recovered"
)

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Event             string  `json:"event"`
	Station           string  `json:"station"`
	Stream            string  `json:"stream,omitempty"`
	SilenceDurationMs int64   `json:"silence_duration_ms,omitempty"`
	LevelDB           float64 `json:"level_db"`
	Threshold         float64 `json:"threshold"`
	Timestamp         string  `json:"timestamp"`
}

func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func sendWebhook(client *http.Client, url string, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", media.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
