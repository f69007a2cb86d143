package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"
)

// Abandonment describes an event given up on after exhausting retries. The
// relayer keeps running; an operator has to act.
type Abandonment struct {
	StreamID string
	Nonce    uint64
	Kind     string
	Block    uint64
	TxHash   string
	Reason   string
}

type Notifier interface {
	Notify(ctx context.Context, a Abandonment) error
}

// Nop discards notifications; used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Abandonment) error { return nil }

const defaultTemplate = "RELAYER ABANDONED {{.StreamID}} nonce={{.Nonce}} block={{.Block}}: {{.Reason}}"

type webhookNotifier struct {
	url    string
	render *template.Template
	client *http.Client
}

// NewWebhookNotifier builds a Slack-compatible webhook notifier.
func NewWebhookNotifier(url string) (Notifier, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	t, err := template.New("alert").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &webhookNotifier{
		url:    url,
		render: t,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (n *webhookNotifier) Notify(ctx context.Context, a Abandonment) error {
	var text bytes.Buffer
	if err := n.render.Execute(&text, a); err != nil {
		return fmt.Errorf("render alert: %w", err)
	}
	body, err := json.Marshal(map[string]string{"text": text.String()})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook status %d", resp.StatusCode)
	}
	return nil
}
