package whatsapp

import (
	"strconv"
	"strings"
	"time"
)

// WebhookPayload is the envelope Meta posts to the webhook endpoint.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *Button      `json:"button,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Button struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Status is a delivery receipt for a message we sent.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// InboundMessage is one customer message flattened out of a webhook delivery.
type InboundMessage struct {
	PhoneNumberID      string    `json:"phone_number_id"`
	DisplayPhoneNumber string    `json:"display_phone_number,omitempty"`
	From               string    `json:"from"`
	ProfileName        string    `json:"profile_name,omitempty"`
	MessageID          string    `json:"message_id"`
	Type               string    `json:"type"`
	Content            string    `json:"content"`
	MediaID            string    `json:"media_id,omitempty"`
	ReceivedAt         time.Time `json:"received_at"`
}

// InboundMessages splits the payload into independent message units. Only
// changes on the "messages" field are considered.
func (p WebhookPayload) InboundMessages() []InboundMessage {
	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range value.Messages {
				out = append(out, InboundMessage{
					PhoneNumberID:      value.Metadata.PhoneNumberID,
					DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
					From:               msg.From,
					ProfileName:        names[msg.From],
					MessageID:          msg.ID,
					Type:               msg.Type,
					Content:            ExtractContent(msg),
					MediaID:            mediaID(msg),
					ReceivedAt:         parseUnix(msg.Timestamp),
				})
			}
		}
	}
	return out
}

// Statuses returns every delivery receipt in the payload.
func (p WebhookPayload) Statuses() []Status {
	var out []Status
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			out = append(out, change.Value.Statuses...)
		}
	}
	return out
}

// ExtractContent renders a message of any type as chat text.
func ExtractContent(msg Message) string {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body
		}
		return ""
	case "image":
		if msg.Image != nil && strings.TrimSpace(msg.Image.Caption) != "" {
			return msg.Image.Caption
		}
		return "[Image]"
	case "audio":
		return "[Audio message]"
	case "video":
		if msg.Video != nil && strings.TrimSpace(msg.Video.Caption) != "" {
			return msg.Video.Caption
		}
		return "[Video]"
	case "document":
		name := ""
		if msg.Document != nil {
			name = msg.Document.Filename
		}
		return "[Document: " + name + "]"
	case "interactive":
		if msg.Interactive != nil {
			if msg.Interactive.ButtonReply != nil {
				return msg.Interactive.ButtonReply.Title
			}
			if msg.Interactive.ListReply != nil {
				return msg.Interactive.ListReply.Title
			}
		}
		return ""
	case "button":
		if msg.Button != nil {
			return msg.Button.Text
		}
		return ""
	default:
		return "[Unsupported message type: " + msg.Type + "]"
	}
}

func mediaID(msg Message) string {
	for _, m := range []*Media{msg.Image, msg.Audio, msg.Video, msg.Document} {
		if m != nil && m.ID != "" {
			return m.ID
		}
	}
	return ""
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
