package domain

import (
	"context"
	"time"
)

type DeliveryKind string

const (
	DeliveryText     DeliveryKind = "text"
	DeliveryDocument DeliveryKind = "document"
)

const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// DeliveryRecord is one platform call made on behalf of an HTTP client.
type DeliveryRecord struct {
	ID        int64        `json:"id"`
	BatchID   string       `json:"batch_id"`
	Kind      DeliveryKind `json:"kind"`
	ChatID    string       `json:"chat_id"`
	Target    string       `json:"target"` // filename for documents, empty for text
	Bytes     int64        `json:"bytes"`  // file size or text length
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// DeliveryRecorder persists delivery records. Record must not block forwarding
// for long; failures are logged by the caller and otherwise ignored.
type DeliveryRecorder interface {
	Record(ctx context.Context, rec DeliveryRecord) error
}
