package run

import (
	"context"
	"errors"
	"testing"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error {
	return errors.New("队列不可用")
}

func (failingProducer) Close() error { return nil }

func newTestSaga(t *testing.T, sagaID string) *saga.Run {
	t.Helper()
	steps := []saga.Step{
		{
			ID:          "mint",
			Kind:        saga.KindMintToken,
			Criticality: saga.CriticalityRequired,
			Description: "铸造代币",
			Inputs: map[string]saga.Binding{
				"name":   saga.Literal("Moon"),
				"symbol": saga.Literal("MOON"),
			},
		},
		{
			ID:          "announce",
			Kind:        saga.KindCreateSocialGroup,
			Criticality: saga.CriticalityBestEffort,
			Description: "创建社群",
			Inputs: map[string]saga.Binding{
				"token_address": saga.FromOutput("mint", "token_address"),
			},
		},
		{
			ID:          "market",
			Kind:        saga.KindCreateMarket,
			Criticality: saga.CriticalityRequired,
			Description: "创建市场",
			Inputs: map[string]saga.Binding{
				"token_address": saga.FromOutput("mint", "token_address"),
				"quote_address": saga.Literal("0x00000000000000000000000000000000000000aa"),
			},
		},
	}
	sagaRun, err := saga.NewRun(sagaID, steps)
	if err != nil {
		t.Fatalf("构建工作流失败: %v", err)
	}
	return sagaRun
}

func TestServiceSubmitAndGet(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue)
	defer service.Close()

	record, err := service.Submit(context.Background(), KindLaunch, "0xowner", newTestSaga(t, "saga-1"))
	if err != nil {
		t.Fatalf("提交运行失败: %v", err)
	}
	if record.Status != StatusPending {
		t.Fatalf("期望状态 PENDING, 实际 %s", record.Status)
	}

	view, err := service.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("查询运行失败: %v", err)
	}
	if view.SagaID != "saga-1" || view.Kind != KindLaunch || view.Owner != "0xowner" {
		t.Fatalf("运行快照不符: %+v", view)
	}
	if len(view.Steps) != 3 {
		t.Fatalf("期望 3 个步骤, 实际 %d", len(view.Steps))
	}
	for _, step := range view.Steps {
		if step.Status != string(saga.StepStatusPending) {
			t.Fatalf("未执行的步骤应为 PENDING, 实际 %s", step.Status)
		}
	}
}

func TestServiceSubmitPublishFailure(t *testing.T) {
	store := NewMemoryStore()
	service := NewService(store, failingProducer{})

	record := newTestSaga(t, "saga-2")
	_, err := service.Submit(context.Background(), KindLaunch, "0xowner", record)
	if err == nil {
		t.Fatal("期望入队失败返回错误")
	}
	if !xerrors.IsCode(err, xerrors.CodeQueueFailure) {
		t.Fatalf("期望 QUEUE_FAILURE, 实际 %v", err)
	}

	stats, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("查询统计失败: %v", err)
	}
	if stats.Aborted != 1 {
		t.Fatalf("入队失败的运行应被标记为中止: %+v", stats)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1))
	if _, err := service.Submit(context.Background(), KindSwap, "0xowner", nil); err == nil {
		t.Fatal("空工作流应被拒绝")
	}
}

func TestMemoryStoreClaim(t *testing.T) {
	store := NewMemoryStore()
	record := &Record{ID: "run-1", SagaID: "saga-1", Kind: KindLaunch, Status: StatusPending}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	claimed, err := store.Claim(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("领取运行失败: %v", err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("领取后状态应为 RUNNING, 实际 %s", claimed.Status)
	}

	if _, err := store.Claim(context.Background(), "run-1"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("重复领取应返回冲突, 实际 %v", err)
	}
	if _, err := store.Claim(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("不存在的运行应返回未找到, 实际 %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Record{ID: "run-1", SagaID: "saga-1", Kind: KindLaunch}); err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("查询运行失败: %v", err)
	}
	got.Status = StatusAborted
	got.Error = "调用方本地修改"

	again, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("再次查询失败: %v", err)
	}
	if again.Status != StatusPending || again.Error != "" {
		t.Fatalf("Get 返回值的修改不应写回存储: %+v", again)
	}

	claimed, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("领取运行失败: %v", err)
	}
	claimed.Status = StatusAborted
	if view, _ := store.Get(ctx, "run-1"); view.Status != StatusRunning {
		t.Fatalf("Claim 返回值的修改不应写回存储: %s", view.Status)
	}
}

// 状态查询与执行器的终态写入并发进行，快照读取不得触碰存储内的活动记录。
func TestMemoryStoreSnapshotDuringTerminalMark(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	record := &Record{ID: "run-1", Kind: KindSwap, Saga: newTestSaga(t, "saga-1"), SagaID: "saga-1"}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			snapshot, err := store.Get(ctx, "run-1")
			if err != nil {
				t.Errorf("查询运行失败: %v", err)
				return
			}
			_ = snapshot.Snapshot()
		}
	}()

	for i := 0; i < 500; i++ {
		if err := store.MarkAborted(ctx, "run-1", "并发标记"); err != nil {
			t.Fatalf("标记中止失败: %v", err)
		}
		if err := store.MarkCompleted(ctx, "run-1"); err != nil {
			t.Fatalf("标记完成失败: %v", err)
		}
	}
	<-done
}
