package transcript

import (
	"context"
	"sync"

	"github.com/google/uuid"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// MemoryStore 以内存方式保存对话记录，主要用于测试与开发环境。
type MemoryStore struct {
	mu      sync.RWMutex
	bySaga  map[string][]*Entry
	pending map[string]*Entry
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySaga:  make(map[string][]*Entry),
		pending: make(map[string]*Entry),
	}
}

// Append 实现 Store 接口。追加在锁内完成，对并发调用方原子。
func (m *MemoryStore) Append(_ context.Context, entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "entry 不能为空")
	}
	if entry.SagaID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now()
	}

	clone := *entry
	m.bySaga[entry.SagaID] = append(m.bySaga[entry.SagaID], &clone)
	if clone.PendingActionRef != "" {
		m.pending[clone.PendingActionRef] = &clone
	}
	return nil
}

// List 按追加顺序返回会话的全部记录。
func (m *MemoryStore) List(_ context.Context, sagaID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.bySaga[sagaID]
	results := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		results = append(results, *entry)
	}
	return results, nil
}

// FindPendingAction 查找仍待确认的操作。
func (m *MemoryStore) FindPendingAction(_ context.Context, ref string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.pending[ref]
	if !ok {
		return nil, ErrActionNotFound
	}
	clone := *entry
	return &clone, nil
}

// ClearPendingAction 清除待确认引用并返回清除前的记录快照。
func (m *MemoryStore) ClearPendingAction(_ context.Context, ref string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[ref]
	if !ok {
		return nil, ErrActionNotFound
	}
	snapshot := *entry
	entry.PendingActionRef = ""
	delete(m.pending, ref)
	return &snapshot, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
