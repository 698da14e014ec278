package transcript

import (
	"context"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// Role 区分记录的来源。
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// Entry 是对话记录中的一条不可变消息。
// PendingActionRef 非空表示该消息携带一个等待用户确认的操作，
// 确认或取消后引用被清除，消息本身保留。
type Entry struct {
	ID               string `json:"id"`
	SagaID           string `json:"saga_id"`
	Role             Role   `json:"role"`
	Content          string `json:"content"`
	PendingActionRef string `json:"pending_action_ref,omitempty"`
	ActionPayload    string `json:"action_payload,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// Store 抽象对话记录的持久化。追加必须是原子的，
// 同一会话内的读取顺序与追加顺序一致。
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, sagaID string) ([]Entry, error)
	FindPendingAction(ctx context.Context, ref string) (*Entry, error)
	ClearPendingAction(ctx context.Context, ref string) (*Entry, error)
	Close() error
}

// ErrActionNotFound 表示引用的待确认操作不存在或已被处理。
var ErrActionNotFound = xerrors.New(xerrors.CodeActionNotFound, "")

func now() int64 {
	return time.Now().UnixMilli()
}
