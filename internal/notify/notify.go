// Package notify delivers owner notifications. Delivery is fire-and-forget:
// callers log failures and never retry.
package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/affiliate-scout/internal/config"
	"github.com/sells-group/affiliate-scout/pkg/notion"
)

// Kind identifies the body template of a notification.
type Kind string

const (
	KindDiscoverySucceeded    Kind = "discovery_succeeded"
	KindDiscoveryNoCandidates Kind = "discovery_no_candidates"
	KindDiscoveryFailed       Kind = "discovery_failed"
	KindImportSummary         Kind = "import_summary"
)

// Message is one notification to a campaign or import owner.
type Message struct {
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// Notifier sends a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// New builds the notifier selected by cfg.Kind.
func New(cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Kind {
	case "", "log":
		return Log{}, nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, eris.New("notify: webhook url is required")
		}
		return NewWebhook(cfg.WebhookURL), nil
	case "notion":
		if cfg.NotionToken == "" || cfg.NotionDB == "" {
			return nil, eris.New("notify: notion token and database are required")
		}
		return NewNotion(notion.NewClient(cfg.NotionToken), cfg.NotionDB), nil
	default:
		return nil, eris.Errorf("notify: unknown kind %q", cfg.Kind)
	}
}

// Send delivers msg with its own timeout and logs any failure. It reports
// whether delivery succeeded.
func Send(ctx context.Context, n Notifier, msg Message) bool {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := n.Notify(ctx, msg); err != nil {
		zap.L().Error("notify: delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return false
	}
	zap.L().Info("notify: sent",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
	)
	return true
}

const sendTimeout = 15 * time.Second

// Log writes notifications to the structured log only.
type Log struct{}

func (Log) Notify(_ context.Context, msg Message) error {
	zap.L().Info("notify: message",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Any("payload", msg.Payload),
	)
	return nil
}
