package run

import (
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
)

// Status 描述一次工作流运行的调度状态。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusAborted   Status = "ABORTED"
)

// Kind 标记运行承载的业务意图。
type Kind string

const (
	KindLaunch Kind = "launch"
	KindSwap   Kind = "swap"
)

// Record 是一次待执行或执行中的工作流运行。
// 运行到达终态后只保留在内存中，对话记录才是持久的事实来源。
type Record struct {
	ID        string
	SagaID    string
	Kind      Kind
	Owner     string
	Status    Status
	Error     string
	CreatedAt int64
	UpdatedAt int64

	Saga *saga.Run
}

// StepView 是对外暴露的步骤快照。
type StepView struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Criticality string         `json:"criticality"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// View 是对外暴露的运行快照。
type View struct {
	ID        string     `json:"id"`
	SagaID    string     `json:"saga_id"`
	Kind      Kind       `json:"kind"`
	Owner     string     `json:"owner"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	Steps     []StepView `json:"steps"`
}

// Snapshot 构建运行的只读视图。
func (r *Record) Snapshot() View {
	view := View{
		ID:        r.ID,
		SagaID:    r.SagaID,
		Kind:      r.Kind,
		Owner:     r.Owner,
		Status:    r.Status,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Saga == nil {
		return view
	}
	for _, step := range r.Saga.Steps() {
		stepView := StepView{
			ID:          step.ID,
			Kind:        string(step.Kind),
			Criticality: string(step.Criticality),
			Status:      string(step.Status),
			Output:      step.Output,
		}
		if step.Err != nil {
			stepView.Error = step.Err.Error()
		}
		view.Steps = append(view.Steps, stepView)
	}
	return view
}

// Stats 汇总运行的数量分布。
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
}

// 运行存储层的哨兵错误。
var (
	ErrRunNotFound = xerrors.New(xerrors.CodeNotFound, "运行不存在")
	ErrRunConflict = xerrors.New(xerrors.CodeConflict, "运行状态冲突")
)

func nowUnix() int64 {
	return time.Now().Unix()
}
