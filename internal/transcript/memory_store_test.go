package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	xerrors "LaunchMCP-Chain/internal/errors"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Entry{SagaID: "saga-1", Role: RoleUser, Content: "launch MOON"}
	second := &Entry{SagaID: "saga-1", Role: RoleSystem, Content: "minting"}
	if err := store.Append(ctx, first); err != nil {
		t.Fatalf("追加失败: %v", err)
	}
	if err := store.Append(ctx, second); err != nil {
		t.Fatalf("追加失败: %v", err)
	}
	if first.ID == "" || first.CreatedAt == 0 {
		t.Fatal("追加应补齐 ID 与时间戳")
	}

	entries, err := store.List(ctx, "saga-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", len(entries))
	}
	if entries[0].Content != "launch MOON" || entries[1].Content != "minting" {
		t.Fatal("读取顺序应与追加顺序一致")
	}

	other, err := store.List(ctx, "saga-2")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(other) != 0 {
		t.Fatal("其他会话不应看到记录")
	}
}

func TestMemoryStoreAppendValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Append(ctx, nil); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("空 entry 应被拒绝: %v", err)
	}
	if err := store.Append(ctx, &Entry{Role: RoleUser}); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("缺少会话 ID 应被拒绝: %v", err)
	}
}

func TestMemoryStorePendingActionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{
		SagaID:           "saga-1",
		Role:             RoleSystem,
		Content:          "confirm launch?",
		PendingActionRef: "ref-1",
		ActionPayload:    `{"kind":"launch"}`,
	}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("追加失败: %v", err)
	}

	found, err := store.FindPendingAction(ctx, "ref-1")
	if err != nil {
		t.Fatalf("查找失败: %v", err)
	}
	if found.ActionPayload != `{"kind":"launch"}` {
		t.Fatalf("载荷不匹配: %s", found.ActionPayload)
	}

	cleared, err := store.ClearPendingAction(ctx, "ref-1")
	if err != nil {
		t.Fatalf("清除失败: %v", err)
	}
	if cleared.PendingActionRef != "ref-1" {
		t.Fatal("返回的快照应保留清除前的引用")
	}

	// 清除后消息保留，引用消失。
	entries, err := store.List(ctx, "saga-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("期望 1 条记录，实际 %d", len(entries))
	}
	if entries[0].PendingActionRef != "" {
		t.Fatal("清除后记录不应再携带引用")
	}

	if _, err := store.FindPendingAction(ctx, "ref-1"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("已清除的引用应返回 ACTION_NOT_FOUND: %v", err)
	}
	if _, err := store.ClearPendingAction(ctx, "ref-1"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("重复清除应返回 ACTION_NOT_FOUND: %v", err)
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				entry := &Entry{
					SagaID:  "saga-1",
					Role:    RoleSystem,
					Content: fmt.Sprintf("w%d-%d", w, i),
				}
				if err := store.Append(ctx, entry); err != nil {
					t.Errorf("并发追加失败: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.List(ctx, "saga-1")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if len(entries) != writers*perWriter {
		t.Fatalf("期望 %d 条记录，实际 %d", writers*perWriter, len(entries))
	}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; dup {
			t.Fatalf("记录 ID 重复: %s", entry.ID)
		}
		seen[entry.ID] = struct{}{}
	}
}
