package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	if err := pub.Publish(ctx, Event{ID: "1", Type: TransferSimulated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	boom := errors.New("broker down")
	pub.FailWith(boom)
	if err := pub.Publish(ctx, Event{ID: "2"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	pub.FailWith(nil)

	got := pub.Events()
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("unexpected events %+v", got)
	}
	got[0].ID = "mutated"
	if pub.Events()[0].ID != "1" {
		t.Fatalf("Events must return a copy")
	}
}

func TestNopPublisher(t *testing.T) {
	var pub Publisher = NopPublisher{}
	if err := pub.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}

func TestEncode(t *testing.T) {
	gas := uint64(21000)
	status := true
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evt := Event{
		ID:         "evt-1",
		Type:       TransferConfirmed,
		TransferID: "tx-1",
		From:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		To:         "alice.eth",
		AmountEth:  "1.5",
		TxHash:     "0xabc",
		GasUsed:    &gas,
		Status:     &status,
		OccurredAt: at,
	}

	msg, err := encode(evt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties %+v", msg)
	}
	if msg.MessageId != "evt-1" || msg.Type != "transfer.confirmed" || !msg.Timestamp.Equal(at) {
		t.Fatalf("unexpected message metadata %+v", msg)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["transfer_id"] != "tx-1" || decoded["gas_used"] != float64(21000) || decoded["status"] != true {
		t.Fatalf("unexpected body %s", msg.Body)
	}
	if _, ok := decoded["error_code"]; ok {
		t.Fatalf("empty error code should be omitted: %s", msg.Body)
	}
}

func TestRabbitMQPublisherValidation(t *testing.T) {
	if _, err := NewRabbitMQPublisher(RabbitMQConfig{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	var pub *RabbitMQPublisher
	if err := pub.Publish(context.Background(), Event{}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("closing a nil publisher should be a no-op: %v", err)
	}
}
