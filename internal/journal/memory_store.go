package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 以内存方式保存转账流水，适用于开发与测试。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	seq     map[string]int64
	next    int64
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		seq:     make(map[string]int64),
	}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.ID]; ok {
		return ErrConflict
	}
	now := time.Now().Unix()
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.State == "" {
		entry.State = StatePending
	}
	m.next++
	m.seq[entry.ID] = m.next
	m.entries[entry.ID] = entry.Clone()
	return nil
}

// Get 返回流水。
func (m *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.Clone(), nil
}

// Complete 记录成功结果。
func (m *MemoryStore) Complete(_ context.Context, id string, outcome Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.pendingLocked(id)
	if err != nil {
		return err
	}
	entry.State = outcome.State
	entry.TxHash = outcome.TxHash
	entry.GasUsed = cloneUint64(outcome.GasUsed)
	if outcome.Status != nil {
		status := *outcome.Status
		entry.Status = &status
	}
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

// Fail 标记流水失败。
func (m *MemoryStore) Fail(_ context.Context, id string, failure Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.pendingLocked(id)
	if err != nil {
		return err
	}
	entry.State = StateFailed
	entry.ErrorCode = string(failure.Code)
	entry.Stage = failure.Stage
	entry.Error = failure.Message
	entry.UpdatedAt = time.Now().Unix()
	return nil
}

func (m *MemoryStore) pendingLocked(id string) (*Entry, error) {
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.State != StatePending {
		return nil, ErrFinalized
	}
	return entry, nil
}

// List 返回符合条件的流水。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		if !matchesListFilters(entry, opts) {
			continue
		}
		results = append(results, entry)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := m.seq[results[i].ID], m.seq[results[j].ID]
		if opts.Order == SortByCreatedAsc {
			return a < b
		}
		return a > b
	})

	if opts.Offset >= len(results) {
		return []*Entry{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	out := make([]*Entry, len(results))
	for i, entry := range results {
		out[i] = entry.Clone()
	}
	return out, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func matchesListFilters(entry *Entry, opts ListOptions) bool {
	if len(opts.States) > 0 {
		matched := false
		for _, state := range opts.States {
			if entry.State == state {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.From != "" && strings.ToLower(entry.From) != opts.From {
		return false
	}
	return true
}
