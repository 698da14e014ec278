package run

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/observability/alerting"
	"LaunchMCP-Chain/internal/saga"
	"LaunchMCP-Chain/internal/transcript"
)

// scriptedInvoker 按步骤类型返回预设输出或错误。
type scriptedInvoker struct {
	mu      sync.Mutex
	outputs map[saga.Kind]map[string]any
	errs    map[saga.Kind]error
	calls   []saga.Kind
}

func (s *scriptedInvoker) Invoke(_ context.Context, kind saga.Kind, _ map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
	if err, ok := s.errs[kind]; ok {
		return nil, err
	}
	if out, ok := s.outputs[kind]; ok {
		return out, nil
	}
	return map[string]any{}, nil
}

func (s *scriptedInvoker) invoked(kind saga.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.calls {
		if k == kind {
			return true
		}
	}
	return false
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func submitRun(t *testing.T, store Store, sagaID string) *Record {
	t.Helper()
	record := &Record{
		ID:     "run-" + sagaID,
		SagaID: sagaID,
		Kind:   KindLaunch,
		Status: StatusPending,
		Saga:   newTestSaga(t, sagaID),
	}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("创建运行失败: %v", err)
	}
	return record
}

func TestRunnerBestEffortFailureCompletes(t *testing.T) {
	store := NewMemoryStore()
	transcripts := transcript.NewMemoryStore()
	invoker := &scriptedInvoker{
		outputs: map[saga.Kind]map[string]any{
			saga.KindMintToken:    {"token_address": "0xabc", "tx_hash": "0x01"},
			saga.KindCreateMarket: {"market_id": "0xmkt", "tx_hash": "0x02"},
		},
		errs: map[saga.Kind]error{
			saga.KindCreateSocialGroup: xerrors.New(xerrors.CodeSubmissionFailed, "社群服务不可用"),
		},
	}
	record := submitRun(t, store, "saga-a")
	runner := NewRunner(store, NewMemoryQueue(1), invoker, transcripts)

	if err := runner.handle(context.Background(), record.ID); err != nil {
		t.Fatalf("处理运行失败: %v", err)
	}

	got, err := store.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("查询运行失败: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("尽力步骤失败不应中止运行, 实际状态 %s", got.Status)
	}

	entries, err := transcripts.List(context.Background(), "saga-a")
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("期望 3 条记录, 实际 %d", len(entries))
	}
	if !strings.Contains(entries[1].Content, "失败") {
		t.Fatalf("失败步骤应留下失败记录: %q", entries[1].Content)
	}
	if !strings.Contains(entries[2].Content, "完成") {
		t.Fatalf("后续步骤应继续执行并记录: %q", entries[2].Content)
	}
}

func TestRunnerRequiredFailureAborts(t *testing.T) {
	store := NewMemoryStore()
	transcripts := transcript.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	invoker := &scriptedInvoker{
		errs: map[saga.Kind]error{
			saga.KindMintToken: xerrors.New(xerrors.CodeTransactionReverted, "交易被回滚"),
		},
	}
	record := submitRun(t, store, "saga-b")
	runner := NewRunner(store, NewMemoryQueue(1), invoker, transcripts,
		WithAlertDispatcher(dispatcher))

	if err := runner.handle(context.Background(), record.ID); err != nil {
		t.Fatalf("处理运行失败: %v", err)
	}

	got, err := store.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("查询运行失败: %v", err)
	}
	if got.Status != StatusAborted {
		t.Fatalf("关键步骤失败应中止运行, 实际状态 %s", got.Status)
	}
	if got.Error == "" {
		t.Fatal("中止原因不应为空")
	}

	// 未执行的步骤不产生对话记录。
	entries, err := transcripts.List(context.Background(), "saga-b")
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("期望仅 1 条失败记录, 实际 %d", len(entries))
	}
	if invoker.invoked(saga.KindCreateMarket) || invoker.invoked(saga.KindCreateSocialGroup) {
		t.Fatal("中止后不应调用后续步骤")
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.events) != 1 {
		t.Fatalf("期望 1 条告警, 实际 %d", len(dispatcher.events))
	}
	if dispatcher.events[0].Code != xerrors.CodeTransactionReverted {
		t.Fatalf("告警错误码不符: %s", dispatcher.events[0].Code)
	}
}

func TestRunnerClaimConflictIsIgnored(t *testing.T) {
	store := NewMemoryStore()
	invoker := &scriptedInvoker{}
	record := submitRun(t, store, "saga-c")
	if _, err := store.Claim(context.Background(), record.ID); err != nil {
		t.Fatalf("预占运行失败: %v", err)
	}

	runner := NewRunner(store, NewMemoryQueue(1), invoker, transcript.NewMemoryStore())
	if err := runner.handle(context.Background(), record.ID); err != nil {
		t.Fatalf("重复领取应被静默跳过: %v", err)
	}
	if len(invoker.calls) != 0 {
		t.Fatal("被占用的运行不应被再次执行")
	}
	if err := runner.handle(context.Background(), "missing"); err != nil {
		t.Fatalf("不存在的运行应被静默跳过: %v", err)
	}
}

func TestRunnerConsumesFromQueue(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	transcripts := transcript.NewMemoryStore()
	invoker := &scriptedInvoker{
		outputs: map[saga.Kind]map[string]any{
			saga.KindMintToken:         {"token_address": "0xabc", "tx_hash": "0x01"},
			saga.KindCreateSocialGroup: {"group_id": "g1", "invite_link": "https://t.me/moon"},
			saga.KindCreateMarket:      {"market_id": "0xmkt", "tx_hash": "0x02"},
		},
	}
	service := NewService(store, queue)
	record, err := service.Submit(context.Background(), KindLaunch, "0xowner", newTestSaga(t, "saga-d"))
	if err != nil {
		t.Fatalf("提交运行失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(store, queue, invoker, transcripts, WithWorkerCount(2))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Start(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()
	view, err := service.WaitUntilTerminal(waitCtx, record.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待运行终态失败: %v", err)
	}
	if view.Status != StatusCompleted {
		t.Fatalf("期望运行完成, 实际 %s", view.Status)
	}
	for _, step := range view.Steps {
		if step.Status != string(saga.StepStatusSucceeded) {
			t.Fatalf("步骤 %s 应成功, 实际 %s", step.ID, step.Status)
		}
	}

	entries, err := transcripts.List(context.Background(), "saga-d")
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("期望 3 条记录, 实际 %d", len(entries))
	}
	if !strings.Contains(entries[1].Content, "https://t.me/moon") {
		t.Fatalf("社群记录应包含邀请链接: %q", entries[1].Content)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("消费循环未随上下文退出")
	}
}
