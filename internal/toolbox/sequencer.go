package toolbox

import (
	"context"
	"strings"
	"sync"

	xerrors "OpenMCP-EVM/internal/errors"
)

// Sequencer 保证同一发送方的广播严格串行，避免 nonce 冲突。
type Sequencer interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// MemorySequencer 在单个进程内按发送方串行化。
type MemorySequencer struct {
	mu    sync.Mutex
	slots map[string]*senderSlot
}

type senderSlot struct {
	ch   chan struct{}
	refs int
}

// NewMemorySequencer 创建 MemorySequencer。
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{slots: make(map[string]*senderSlot)}
}

// Acquire 实现 Sequencer 接口。key 大小写不敏感。
func (s *MemorySequencer) Acquire(ctx context.Context, key string) (func(), error) {
	key = strings.ToLower(strings.TrimSpace(key))

	s.mu.Lock()
	slot, ok := s.slots[key]
	if !ok {
		slot = &senderSlot{ch: make(chan struct{}, 1)}
		s.slots[key] = slot
	}
	slot.refs++
	s.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				s.unref(key, slot)
			})
		}, nil
	case <-ctx.Done():
		s.unref(key, slot)
		return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待发送方锁超时")
	}
}

func (s *MemorySequencer) unref(key string, slot *senderSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(s.slots, key)
	}
}

// held reports how many senders currently have waiters or holders.
func (s *MemorySequencer) held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
