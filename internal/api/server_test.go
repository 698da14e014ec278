package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"LaunchMCP-Chain/internal/auth"
	"LaunchMCP-Chain/internal/launch"
	"LaunchMCP-Chain/internal/run"
	"LaunchMCP-Chain/internal/saga"
	"LaunchMCP-Chain/internal/swap"
	"LaunchMCP-Chain/internal/tokens"
	"LaunchMCP-Chain/internal/transcript"
)

// echoInvoker 为每种步骤返回固定输出。
type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, kind saga.Kind, _ map[string]any) (map[string]any, error) {
	switch kind {
	case saga.KindMintToken:
		return map[string]any{"token_address": "0xabc", "tx_hash": "0x01"}, nil
	case saga.KindCreateSocialGroup:
		return map[string]any{"group_id": "g1", "invite_link": "https://t.me/moon"}, nil
	case saga.KindCreateMarket:
		return map[string]any{"market_id": "0xmkt", "tx_hash": "0x02"}, nil
	case saga.KindCreateAMMPool:
		return map[string]any{"pool_id": "0xpool", "tx_hash": "0x03"}, nil
	case saga.KindCheckAllowance:
		return map[string]any{"current_allowance": "0", "needs_approval": true}, nil
	default:
		return map[string]any{"tx_hash": "0x04"}, nil
	}
}

type fixture struct {
	server      *Server
	handler     http.Handler
	transcripts *transcript.MemoryStore
	runs        *run.Service
	runner      *run.Runner
	cancel      context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	transcripts := transcript.NewMemoryStore()
	store := run.NewMemoryStore()
	queue := run.NewMemoryQueue(8)
	runs := run.NewService(store, queue)

	registry := tokens.NewRegistry(map[string]tokens.Definition{
		"usdt": {Address: "0x0000000000000000000000000000000000000aaa", Decimals: 6},
		"moon": {Address: "0x0000000000000000000000000000000000000bbb", Decimals: 9},
	})
	swaps := swap.NewBuilder(registry, swap.Config{
		RouterAddress: "0x0000000000000000000000000000000000000ccc",
	})

	server := NewServer(Config{
		Addr:         ":0",
		DefaultOwner: "0x0000000000000000000000000000000000000001",
		Transcripts:  transcripts,
		Runs:         runs,
		LaunchParams: launch.Params{
			Decimals:        9,
			MintAmount:      big.NewInt(10_000_000_000),
			PoolSupplyShare: 10,
			QuoteAmount:     big.NewInt(4),
			QuoteAddress:    "0x0000000000000000000000000000000000000ddd",
		},
		Swaps: swaps,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runner := run.NewRunner(store, queue, echoInvoker{}, transcripts)
	go func() { _ = runner.Start(ctx) }()
	t.Cleanup(cancel)

	return &fixture{
		server:      server,
		handler:     server.Handler(),
		transcripts: transcripts,
		runs:        runs,
		runner:      runner,
		cancel:      cancel,
	}
}

func (f *fixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("序列化请求失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, rec.Body.String())
	}
	return out
}

func TestLaunchProposeConfirmFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/launch", map[string]string{
		"name":   "Moon Token",
		"symbol": "MOON",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d: %s", rec.Code, rec.Body.String())
	}
	proposal := decodeJSON[proposalResponse](t, rec)
	if proposal.ActionRef == "" || proposal.SagaID == "" {
		t.Fatalf("响应缺少操作引用: %+v", proposal)
	}

	// 确认前对话记录只有用户意图与待确认提示。
	entries, err := f.transcripts.List(context.Background(), proposal.SagaID)
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条记录, 实际 %d", len(entries))
	}
	if entries[1].PendingActionRef != proposal.ActionRef {
		t.Fatalf("系统记录应携带待确认引用: %+v", entries[1])
	}

	rec = f.post(t, "/api/v1/actions/confirm", map[string]string{"action_ref": proposal.ActionRef})
	if rec.Code != http.StatusOK {
		t.Fatalf("确认失败: %d %s", rec.Code, rec.Body.String())
	}
	confirmed := decodeJSON[confirmResponse](t, rec)

	waitCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	view, err := f.runs.WaitUntilTerminal(waitCtx, confirmed.RunID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待运行终态失败: %v", err)
	}
	if view.Status != run.StatusCompleted {
		t.Fatalf("期望运行完成, 实际 %s", view.Status)
	}
	if len(view.Steps) != 4 {
		t.Fatalf("发币工作流应有 4 步, 实际 %d", len(view.Steps))
	}

	// 运行状态接口返回同一快照。
	rec = f.get(t, "/api/v1/runs?id="+confirmed.RunID)
	if rec.Code != http.StatusOK {
		t.Fatalf("查询运行失败: %d", rec.Code)
	}

	// 重复确认同一操作返回 404。
	rec = f.post(t, "/api/v1/actions/confirm", map[string]string{"action_ref": proposal.ActionRef})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("重复确认应返回 404, 实际 %d", rec.Code)
	}
}

func TestSwapProposeCancelFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/swap", map[string]string{
		"source_symbol": "usdt",
		"target_symbol": "moon",
		"amount":        "2.5",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d: %s", rec.Code, rec.Body.String())
	}
	proposal := decodeJSON[proposalResponse](t, rec)

	rec = f.post(t, "/api/v1/actions/cancel", map[string]string{"action_ref": proposal.ActionRef})
	if rec.Code != http.StatusOK {
		t.Fatalf("取消失败: %d %s", rec.Code, rec.Body.String())
	}

	entries, err := f.transcripts.List(context.Background(), proposal.SagaID)
	if err != nil {
		t.Fatalf("读取对话记录失败: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Content != transcript.CancelledMessage {
		t.Fatalf("取消后应追加取消记录: %q", last.Content)
	}

	// 取消后的操作不能再被确认。
	rec = f.post(t, "/api/v1/actions/confirm", map[string]string{"action_ref": proposal.ActionRef})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("已取消的操作确认应返回 404, 实际 %d", rec.Code)
	}
}

func TestLaunchValidationRejectedBeforeTranscript(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/launch", map[string]string{"name": "", "symbol": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法意图应返回 400, 实际 %d", rec.Code)
	}
}

func TestSwapUnknownTokenRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, "/api/v1/swap", map[string]string{
		"source_symbol": "doge",
		"target_symbol": "moon",
		"amount":        "1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("未知代币应返回 400, 实际 %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("解析错误响应失败: %v", err)
	}
	if payload["code"] != "UNKNOWN_TOKEN" {
		t.Fatalf("错误码不符: %+v", payload)
	}
}

func TestRunsEndpointNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/runs?id=missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("未知运行应返回 404, 实际 %d", rec.Code)
	}
}

func TestAuthProtectedEndpoints(t *testing.T) {
	transcripts := transcript.NewMemoryStore()
	runs := run.NewService(run.NewMemoryStore(), run.NewMemoryQueue(1))
	registry := tokens.NewRegistry(nil)
	server := NewServer(Config{
		Transcripts: transcripts,
		Runs:        runs,
		Swaps:       swap.NewBuilder(registry, swap.Config{RouterAddress: "0xccc"}),
		LaunchParams: launch.Params{
			Decimals:     9,
			MintAmount:   big.NewInt(1),
			QuoteAddress: "0xddd",
		},
		Auth: auth.NewService(auth.Config{
			Enabled:  true,
			Sessions: map[string]string{"token-abc": "0x02"},
		}),
	})
	handler := server.Handler()

	body := strings.NewReader(`{"name":"Moon","symbol":"MOON"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/launch", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("缺少令牌应返回 401, 实际 %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/launch",
		strings.NewReader(`{"name":"Moon","symbol":"MOON"}`))
	req.Header.Set("Authorization", "Bearer token-abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("携带令牌应放行, 实际 %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)
	if rec := f.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("健康检查失败: %d", rec.Code)
	}
	rec := f.get(t, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("统计接口失败: %d", rec.Code)
	}
	stats := decodeJSON[run.Stats](t, rec)
	if stats.Total != 0 {
		t.Fatalf("初始统计应为空: %+v", stats)
	}
	if rec := f.get(t, "/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("指标接口失败: %d", rec.Code)
	}
}
