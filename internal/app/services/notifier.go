package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	EventOperatorAlert = "operator.alert"
	EventMemberWarning = "member.warning"
)

// WebhookNotifier posts operator alerts and member warnings as JSON to fixed URLs.
type WebhookNotifier struct {
	client     *http.Client
	alertURL   string
	warningURL string
	token      string
	log        waLog.Logger
}

// NewWebhookNotifier builds a notifier. An empty warningURL falls back to alertURL.
func NewWebhookNotifier(alertURL, warningURL, token string, client *http.Client, log waLog.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = waLog.Noop
	}
	alertURL = strings.TrimSpace(alertURL)
	warningURL = strings.TrimSpace(warningURL)
	if warningURL == "" {
		warningURL = alertURL
	}
	return &WebhookNotifier{client: client, alertURL: alertURL, warningURL: warningURL, token: strings.TrimSpace(token), log: log}
}

// Send delivers an operator alert. Failures are logged and dropped.
func (n *WebhookNotifier) Send(ctx context.Context, channel, text string) {
	if n.alertURL == "" {
		n.log.Debugf("alert webhook ignored (no URL): [%s] %s", channel, text)
		return
	}
	payload := map[string]any{"channel": channel, "text": text}
	if err := n.post(ctx, n.alertURL, EventOperatorAlert, payload); err != nil {
		n.log.Warnf("alert delivery failed channel=%s: %v", channel, err)
	}
}

// SendWarning tells the member's contact channel that a removal is pending. Without a URL
// the warning is only logged.
func (n *WebhookNotifier) SendWarning(ctx context.Context, phoneKey, reason string) error {
	if n.warningURL == "" {
		n.log.Infof("warning for %s (%s) not delivered: no webhook configured", phoneKey, reason)
		return nil
	}
	payload := map[string]any{"phone": phoneKey, "formatted": phone.Display(phoneKey), "reason": reason}
	return n.post(ctx, n.warningURL, EventMemberWarning, payload)
}

func (n *WebhookNotifier) post(ctx context.Context, target, event string, data map[string]any) error {
	body := map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	n.log.Debugf("webhook dispatch start event=%s url=%s", event, target)
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.log.Debugf("webhook dispatch success event=%s status=%d", event, resp.StatusCode)
	return nil
}
