package transcript

import (
	"context"
	"errors"
	"testing"
)

func TestControllerCancel(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := &Entry{
		SagaID:           "saga-1",
		Role:             RoleSystem,
		Content:          "confirm swap?",
		PendingActionRef: "ref-1",
	}
	if err := store.Append(ctx, pending); err != nil {
		t.Fatalf("追加失败: %v", err)
	}

	controller := NewController(store)
	cancelled, err := controller.Cancel(ctx, "ref-1")
	if err != nil {
		t.Fatalf("取消失败: %v", err)
	}
	if cancelled.Content != CancelledMessage {
		t.Fatalf("取消消息内容不匹配: %s", cancelled.Content)
	}
	if cancelled.Role != RoleSystem {
		t.Fatalf("取消消息应为系统角色: %s", cancelled.Role)
	}

	entries, err := store.List(ctx, "saga-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", len(entries))
	}
	if entries[0].PendingActionRef != "" {
		t.Fatal("原消息的引用应被清除")
	}
	if entries[1].Content != CancelledMessage {
		t.Fatal("取消消息应追加在末尾")
	}
}

func TestControllerCancelNotFound(t *testing.T) {
	store := NewMemoryStore()
	controller := NewController(store)

	_, err := controller.Cancel(context.Background(), "missing")
	if !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("未知引用应返回 ACTION_NOT_FOUND: %v", err)
	}

	entries, listErr := store.List(context.Background(), "saga-1")
	if listErr != nil {
		t.Fatalf("读取失败: %v", listErr)
	}
	if len(entries) != 0 {
		t.Fatal("取消失败时不应追加任何记录")
	}
}

// Append 可以注入失败，其余操作委托给内存实现。
type appendFailingStore struct {
	*MemoryStore
	appendErr error
}

func (s *appendFailingStore) Append(ctx context.Context, entry *Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.Append(ctx, entry)
}

func TestControllerCancelAppendFailure(t *testing.T) {
	store := &appendFailingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()

	if err := store.Append(ctx, &Entry{
		SagaID:           "saga-1",
		Role:             RoleSystem,
		Content:          "confirm swap?",
		PendingActionRef: "ref-1",
	}); err != nil {
		t.Fatalf("追加失败: %v", err)
	}

	store.appendErr = errors.New("存储不可用")
	controller := NewController(store)
	if _, err := controller.Cancel(ctx, "ref-1"); !errors.Is(err, store.appendErr) {
		t.Fatalf("追加失败应原样返回: %v", err)
	}

	// 引用在追加失败前已被清除，配对的取消记录缺失只留审计日志。
	if _, err := store.FindPendingAction(ctx, "ref-1"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("引用应已被清除: %v", err)
	}
	entries, err := store.List(ctx, "saga-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("追加失败时不应出现取消记录: %d", len(entries))
	}
}

func TestControllerCancelTwice(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Append(ctx, &Entry{
		SagaID:           "saga-1",
		Role:             RoleSystem,
		Content:          "confirm launch?",
		PendingActionRef: "ref-1",
	}); err != nil {
		t.Fatalf("追加失败: %v", err)
	}

	controller := NewController(store)
	if _, err := controller.Cancel(ctx, "ref-1"); err != nil {
		t.Fatalf("首次取消失败: %v", err)
	}
	if _, err := controller.Cancel(ctx, "ref-1"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("重复取消应返回 ACTION_NOT_FOUND: %v", err)
	}
}
