package notion

import (
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

// Notion rejects rich text longer than this.
const maxRichText = 2000

// Event is one row in an events database with columns
// Name (title), Kind (select), Recipient (email), Sent (date) and Details (text).
type Event struct {
	Title     string
	Kind      string
	Recipient string
	Details   string
	At        time.Time
}

// EventPage builds the create request for ev in database dbID.
func EventPage(dbID string, ev Event) *notionapi.PageCreateRequest {
	at := notionapi.Date(ev.At)
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{textBlock(ev.Title)},
		},
		"Kind": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: ev.Kind},
		},
		"Sent": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &at},
		},
		"Details": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{textBlock(ev.Details)},
		},
	}
	if ev.Recipient != "" {
		props["Recipient"] = notionapi.EmailProperty{
			Type:  notionapi.PropertyTypeEmail,
			Email: ev.Recipient,
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	}
}

func textBlock(s string) notionapi.RichText {
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: truncate(s, maxRichText)}}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
