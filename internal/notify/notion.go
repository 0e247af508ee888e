package notify

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/affiliate-scout/pkg/notion"
)

// Notion records each message as a page in a Notion database.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a Notion notifier writing to database dbID.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

func (n *Notion) Notify(ctx context.Context, msg Message) error {
	details, err := json.Marshal(msg.Payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal payload")
	}
	_, err = n.client.CreatePage(ctx, notion.EventPage(n.dbID, notion.Event{
		Title:     msg.Subject,
		Kind:      string(msg.Kind),
		Recipient: msg.To,
		Details:   string(details),
		At:        msg.SentAt,
	}))
	return err
}
