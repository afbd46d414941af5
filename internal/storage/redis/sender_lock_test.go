package redis

import (
	"context"
	"testing"
	"time"

	xerrors "OpenMCP-EVM/internal/errors"

	"github.com/alicebob/miniredis/v2"
)

func newTestLock(t *testing.T, ttl time.Duration) (*SenderLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	lock, err := NewSenderLock(context.Background(), LockConfig{Address: mr.Addr(), TTL: ttl, Retry: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new sender lock: %v", err)
	}
	t.Cleanup(func() { _ = lock.Close() })
	return lock, mr
}

func TestSenderLockAcquireRelease(t *testing.T) {
	lock, mr := newTestLock(t, time.Minute)

	release, err := lock.Acquire(context.Background(), "0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	key := "toolbox:sender:0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	if !mr.Exists(key) {
		t.Fatalf("lock key should be lowercased and present, keys=%v", mr.Keys())
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	release()
	if mr.Exists(key) {
		t.Fatalf("release should delete the key")
	}
}

func TestSenderLockContention(t *testing.T) {
	lock, _ := newTestLock(t, time.Minute)

	release, err := lock.Acquire(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := lock.Acquire(ctx, "0xABC"); xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout while the lock is held, got %v", err)
	}

	other, err := lock.Acquire(context.Background(), "0xdef")
	if err != nil {
		t.Fatalf("different senders must not contend: %v", err)
	}
	other()

	done := make(chan error, 1)
	go func() {
		again, err := lock.Acquire(context.Background(), "0xabc")
		if err == nil {
			again()
		}
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should acquire after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter never acquired the lock")
	}
}

func TestSenderLockStaleReleaseKeepsNewOwner(t *testing.T) {
	lock, mr := newTestLock(t, time.Second)

	stale, err := lock.Acquire(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	mr.FastForward(2 * time.Second)

	fresh, err := lock.Acquire(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("expired lock should be reacquirable: %v", err)
	}
	stale()
	if !mr.Exists("toolbox:sender:0xabc") {
		t.Fatalf("stale release removed the new owner's lock")
	}
	fresh()
	if mr.Exists("toolbox:sender:0xabc") {
		t.Fatalf("owner release should delete the key")
	}
}

func TestNewSenderLockRequiresAddress(t *testing.T) {
	if _, err := NewSenderLock(context.Background(), LockConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
