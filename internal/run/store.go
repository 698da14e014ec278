package run

import (
	"context"
	"sync"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// Store 抽象运行记录的存取。运行只在内存中流转，
// 终态之后的查询用于状态接口，不承担审计职责。
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Claim(ctx context.Context, id string) (*Record, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkAborted(ctx context.Context, id string, reason string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// MemoryStore 以内存方式保存运行记录。
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Record
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Record)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行记录不完整")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[record.ID]; ok {
		return ErrRunConflict
	}
	now := nowUnix()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = StatusPending
	}
	m.runs[record.ID] = record
	return nil
}

// Get 返回运行记录的副本。调用方读取快照时不与
// 执行器对状态字段的写入共享内存。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	clone := *record
	return &clone, nil
}

// Claim 将待执行的运行置为执行中。重复领取返回冲突。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	if record.Status != StatusPending {
		clone := *record
		return &clone, ErrRunConflict
	}
	record.Status = StatusRunning
	record.UpdatedAt = nowUnix()
	clone := *record
	return &clone, nil
}

// MarkCompleted 记录运行完成。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string) error {
	return m.markTerminal(id, StatusCompleted, "")
}

// MarkAborted 记录运行中止。
func (m *MemoryStore) MarkAborted(_ context.Context, id string, reason string) error {
	return m.markTerminal(id, StatusAborted, reason)
}

func (m *MemoryStore) markTerminal(id string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	record.Status = status
	record.Error = reason
	record.UpdatedAt = nowUnix()
	return nil
}

// Stats 汇总运行状态分布。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{}
	for _, record := range m.runs {
		stats.Total++
		switch record.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusAborted:
			stats.Aborted++
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
