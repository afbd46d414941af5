package alerting

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	xerrors "OpenMCP-EVM/internal/errors"
)

type failingNotifier struct{}

func (failingNotifier) Channel() Channel { return "pager" }

func (failingNotifier) Notify(context.Context, Event) error { return errors.New("pager offline") }

func TestFromError(t *testing.T) {
	err := xerrors.New(xerrors.CodeStorageFailure, "journal down", xerrors.WithMetadata("stage", "built"))
	evt := FromError("transfer", "tx-1", err)
	if evt.Code != xerrors.CodeStorageFailure || evt.Severity != xerrors.SeverityCritical {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Metadata["stage"] != "built" || evt.TransferID != "tx-1" || evt.OccurredAt.IsZero() {
		t.Fatalf("unexpected event details %+v", evt)
	}
}

func TestLogNotifierWritesRecord(t *testing.T) {
	var buf bytes.Buffer
	notifier := &LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	dispatcher := NewFanout(notifier, nil)

	evt := FromError("transfer", "tx-9", xerrors.New("CHAIN_ID_MISMATCH", "wrong chain", xerrors.WithMetadata("expected", "1")))
	if err := dispatcher.Notify(context.Background(), evt); err != nil {
		t.Fatalf("notify: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"code":"CHAIN_ID_MISMATCH"`, `"transfer_id":"tx-9"`, `"meta.expected":"1"`, `"level":"ERROR"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	dispatcher := NewFanout(&LogNotifier{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}, failingNotifier{})
	err := dispatcher.Notify(context.Background(), Event{Code: xerrors.CodeUnknown})
	if err == nil || !strings.Contains(err.Error(), "channel pager") {
		t.Fatalf("expected joined channel error, got %v", err)
	}

	var nilDispatcher *FanoutDispatcher
	if err := nilDispatcher.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil dispatcher should be a no-op: %v", err)
	}
}
