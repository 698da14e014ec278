package saga

import (
	"context"
	"fmt"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/pkg/logger"
)

// StepInvoker 将步骤类型与解析后的输入分发给具体的执行实现。
// 执行器本身不知道任何链上细节。
type StepInvoker interface {
	Invoke(ctx context.Context, kind Kind, params map[string]any) (map[string]any, error)
}

// StepOutcome 是执行器对外发布的单步结果事件。
// 消费方负责落库与状态更新，执行器不直接写任何存储。
type StepOutcome struct {
	RunID       string
	SagaID      string
	StepID      string
	Kind        Kind
	Criticality Criticality
	Description string
	Status      StepStatus
	Skipped     bool
	Output      map[string]any
	Err         error
}

// Execute 逐步推进工作流并通过无缓冲通道发布结果。
// 通道无缓冲意味着消费速度决定执行速度：上一步的结果
// 被取走之前，下一步不会开始。通道在运行结束后关闭。
func (r *Run) Execute(ctx context.Context, invoker StepInvoker) <-chan StepOutcome {
	outcomes := make(chan StepOutcome)
	go func() {
		defer close(outcomes)
		r.run(ctx, invoker, outcomes)
	}()
	return outcomes
}

func (r *Run) run(ctx context.Context, invoker StepInvoker, outcomes chan<- StepOutcome) {
	log := logger.Named("saga")
	aborted := false

	for _, step := range r.steps {
		if aborted {
			break
		}
		if ctx.Err() != nil {
			aborted = true
			break
		}

		snapshot := r.StepOutputs()

		// 条件不满足的步骤保持 PENDING，只发布跳过事件。
		if step.OnlyIf != nil && !step.OnlyIf(snapshot) {
			log.Info("步骤被跳过", "run_id", r.ID, "step_id", step.ID, "kind", step.Kind)
			if !emit(ctx, outcomes, r.outcome(step, true)) {
				aborted = true
			}
			continue
		}

		params, err := resolveInputs(step, snapshot)
		if err != nil {
			r.finishStep(step, nil, err)
			logger.Audit().Warn("步骤依赖未满足",
				"run_id", r.ID, "step_id", step.ID, "error", err.Error())
			if !emit(ctx, outcomes, r.outcome(step, false)) || step.Criticality == CriticalityRequired {
				aborted = true
			}
			continue
		}

		r.markRunning(step)
		log.Info("步骤开始执行", "run_id", r.ID, "step_id", step.ID, "kind", step.Kind)

		output, err := invoker.Invoke(ctx, step.Kind, params)
		r.finishStep(step, output, err)

		if err != nil {
			logger.Audit().Warn("步骤执行失败",
				"run_id", r.ID, "step_id", step.ID, "kind", string(step.Kind),
				"criticality", string(step.Criticality), "error", err.Error())
			if step.Criticality == CriticalityRequired {
				aborted = true
			}
		} else {
			logger.Audit().Info("步骤执行成功",
				"run_id", r.ID, "step_id", step.ID, "kind", string(step.Kind))
		}

		if !emit(ctx, outcomes, r.outcome(step, false)) {
			aborted = true
		}
	}

	r.mu.Lock()
	if aborted {
		r.status = RunStatusAborted
	} else {
		r.status = RunStatusCompleted
	}
	r.mu.Unlock()
}

// resolveInputs 将绑定解析为字面参数。引用的来源步骤必须已成功，
// 否则返回 UNRESOLVED_BINDING，步骤不会被调用。
func resolveInputs(step *Step, outputs Outputs) (map[string]any, error) {
	params := make(map[string]any, len(step.Inputs))
	for name, binding := range step.Inputs {
		if !binding.IsRef() {
			params[name] = binding.Literal
			continue
		}
		value, ok := outputs.Field(binding.FromStep, binding.Field)
		if !ok {
			return nil, xerrors.New(xerrors.CodeUnresolvedBinding,
				fmt.Sprintf("步骤 %s 的输入 %s 依赖未成功的步骤 %s 的字段 %s",
					step.ID, name, binding.FromStep, binding.Field),
				xerrors.WithMetadata("step_id", step.ID),
				xerrors.WithMetadata("from_step", binding.FromStep))
		}
		params[name] = value
	}
	return params, nil
}

func (r *Run) markRunning(step *Step) {
	r.mu.Lock()
	step.Status = StepStatusRunning
	r.mu.Unlock()
}

// finishStep 记录步骤终态。失败的步骤永远不会留下部分输出。
func (r *Run) finishStep(step *Step, output map[string]any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		step.Status = StepStatusFailed
		step.Err = err
		step.Output = nil
		return
	}
	step.Status = StepStatusSucceeded
	step.Output = output
	r.outputs[step.ID] = output
}

func (r *Run) outcome(step *Step, skipped bool) StepOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StepOutcome{
		RunID:       r.ID,
		SagaID:      r.SagaID,
		StepID:      step.ID,
		Kind:        step.Kind,
		Criticality: step.Criticality,
		Description: step.Description,
		Status:      step.Status,
		Skipped:     skipped,
		Output:      step.Output,
		Err:         step.Err,
	}
}

func emit(ctx context.Context, outcomes chan<- StepOutcome, outcome StepOutcome) bool {
	select {
	case outcomes <- outcome:
		return true
	case <-ctx.Done():
		return false
	}
}
