package archive

import "time"

const recordVersion = "1.0"

// TranscriptRecord is one closed conversation as written to the bucket.
type TranscriptRecord struct {
	Version         string       `json:"version"`
	ConversationID  string       `json:"conversation_id"`
	TenantID        string       `json:"tenant_id"`
	CustomerHash    string       `json:"customer_hash"`
	State           string       `json:"state"`
	Outcome         string       `json:"outcome"`
	OrderID         string       `json:"order_id,omitempty"`
	HandedOff       bool         `json:"handed_off"`
	StartedAt       time.Time    `json:"started_at"`
	ArchivedAt      time.Time    `json:"archived_at"`
	DurationSeconds int          `json:"duration_seconds"`
	MessageCount    int          `json:"message_count"`
	Cart            CartSnapshot `json:"cart"`
	Messages        []Message    `json:"messages"`
}

// CartSnapshot keeps the money fields as strings to preserve decimals.
type CartSnapshot struct {
	Items        int    `json:"items"`
	Subtotal     string `json:"subtotal"`
	DeliveryFee  string `json:"delivery_fee"`
	Total        string `json:"total"`
	DeliveryArea string `json:"delivery_area,omitempty"`
	Confirmed    bool   `json:"confirmed"`
}

type Message struct {
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`
	S3Key          string `json:"s3_key"`
	Outcome        string `json:"outcome"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
}
