package saga

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// RunStatus 描述整个工作流运行的状态。
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusAborted   RunStatus = "ABORTED"
)

// Run 表示一次工作流运行。步骤顺序固定，单次运行内严格串行。
type Run struct {
	ID        string
	SagaID    string
	CreatedAt time.Time

	mu      sync.Mutex
	steps   []*Step
	status  RunStatus
	outputs Outputs
}

// NewRun 校验步骤定义并构建运行实例。
// 任何结构性缺陷都在这里被拒绝，而不是留到执行阶段。
func NewRun(sagaID string, steps []Step) (*Run, error) {
	if len(steps) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition, "工作流不能没有步骤")
	}

	seen := make(map[string]int, len(steps))
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
				fmt.Sprintf("第 %d 个步骤缺少 ID", i))
		}
		if _, dup := seen[step.ID]; dup {
			return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
				fmt.Sprintf("步骤 ID 重复: %s", step.ID))
		}
		if _, ok := knownKinds[step.Kind]; !ok {
			return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
				fmt.Sprintf("步骤 %s 的类型未知: %s", step.ID, step.Kind))
		}
		switch step.Criticality {
		case CriticalityRequired, CriticalityBestEffort:
		case "":
			return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
				fmt.Sprintf("步骤 %s 缺少关键性标记", step.ID))
		default:
			return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
				fmt.Sprintf("步骤 %s 的关键性标记非法: %s", step.ID, step.Criticality))
		}

		// 输入绑定只允许引用严格在前的步骤。
		for name, binding := range step.Inputs {
			if !binding.IsRef() {
				continue
			}
			pos, ok := seen[binding.FromStep]
			if !ok {
				return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
					fmt.Sprintf("步骤 %s 的输入 %s 引用了不存在或不在前面的步骤 %s",
						step.ID, name, binding.FromStep))
			}
			if pos >= i {
				return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
					fmt.Sprintf("步骤 %s 的输入 %s 不能引用自身或之后的步骤",
						step.ID, name))
			}
			if binding.Field == "" {
				return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
					fmt.Sprintf("步骤 %s 的输入 %s 缺少引用字段名", step.ID, name))
			}
		}
		seen[step.ID] = i
	}

	run := &Run{
		ID:        uuid.NewString(),
		SagaID:    sagaID,
		CreatedAt: time.Now().UTC(),
		steps:     make([]*Step, 0, len(steps)),
		status:    RunStatusRunning,
		outputs:   make(Outputs, len(steps)),
	}
	for i := range steps {
		step := steps[i]
		step.Status = StepStatusPending
		run.steps = append(run.steps, &step)
	}
	return run, nil
}

// Status 返回当前运行状态。
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Steps 返回步骤快照，供状态查询接口使用。
func (r *Run) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]Step, 0, len(r.steps))
	for _, step := range r.steps {
		snapshot = append(snapshot, *step)
	}
	return snapshot
}

// StepOutputs 返回已成功步骤的输出快照。
func (r *Run) StepOutputs() Outputs {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := make(Outputs, len(r.outputs))
	for id, out := range r.outputs {
		fields := make(map[string]any, len(out))
		for k, v := range out {
			fields[k] = v
		}
		clone[id] = fields
	}
	return clone
}
