package events

import (
	"context"
	"time"
)

// Type names a transfer lifecycle event. It doubles as the routing key.
type Type string

const (
	TransferSimulated   Type = "transfer.simulated"
	TransferConfirmed   Type = "transfer.confirmed"
	TransferUnconfirmed Type = "transfer.unconfirmed"
	TransferFailed      Type = "transfer.failed"
)

// Event is the payload published once a transfer reaches a terminal state.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TransferID string    `json:"transfer_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	AmountEth  string    `json:"amount_eth"`
	Simulate   bool      `json:"simulate"`
	TxHash     string    `json:"tx_hash,omitempty"`
	GasUsed    *uint64   `json:"gas_used,omitempty"`
	Status     *bool     `json:"status,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers transfer events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
