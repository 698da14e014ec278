package run

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/observability/alerting"
	"LaunchMCP-Chain/internal/saga"
	"LaunchMCP-Chain/internal/transcript"
	"LaunchMCP-Chain/pkg/logger"
)

// Runner 从队列消费运行并驱动工作流执行。
// 执行器发布的每个步骤结果先落入对话记录，再更新运行状态，
// 单次运行内严格串行。
type Runner struct {
	store       Store
	consumer    Consumer
	invoker     saga.StepInvoker
	transcripts transcript.Store
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// RunnerOption 定义可选配置。
type RunnerOption func(*Runner)

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) RunnerOption {
	return func(r *Runner) {
		if workers > 0 {
			r.workerCount = workers
		}
	}
}

// WithRunnerLogger 指定日志输出。
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) RunnerOption {
	return func(r *Runner) {
		r.alerter = dispatcher
	}
}

// NewRunner 构造 Runner。
func NewRunner(store Store, consumer Consumer, invoker saga.StepInvoker, transcripts transcript.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:       store,
		consumer:    consumer,
		invoker:     invoker,
		transcripts: transcripts,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start 启动运行处理循环。
func (r *Runner) Start(ctx context.Context) error {
	if r.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置运行消费者")
	}
	return r.consumer.Consume(ctx, r.workerCount, r.handle)
}

func (r *Runner) handle(ctx context.Context, runID string) error {
	if r.store == nil || r.invoker == nil || r.transcripts == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "运行处理器未初始化")
	}
	record, err := r.store.Claim(ctx, runID)
	if err != nil {
		if stdErrors.Is(err, ErrRunNotFound) || stdErrors.Is(err, ErrRunConflict) {
			r.logDebug("跳过运行", slog.String("run_id", runID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取运行失败", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}

	var firstFailure error
	for outcome := range record.Saga.Execute(ctx, r.invoker) {
		// 被跳过的步骤不产生对话记录。
		if outcome.Skipped {
			continue
		}
		if err := r.transcripts.Append(ctx, outcomeEntry(outcome)); err != nil {
			logger.L().Error("步骤结果落库失败",
				slog.Any("error", err),
				slog.String("run_id", runID),
				slog.String("step_id", outcome.StepID))
		}
		if outcome.Status == saga.StepStatusFailed {
			if firstFailure == nil && outcome.Criticality == saga.CriticalityRequired {
				firstFailure = outcome.Err
			}
			r.emitAlert(ctx, record, outcome)
		}
	}

	if record.Saga.Status() == saga.RunStatusAborted {
		reason := "工作流被中止"
		if firstFailure != nil {
			reason = firstFailure.Error()
		}
		if err := r.store.MarkAborted(ctx, runID, reason); err != nil {
			logger.L().Error("标记运行中止失败", slog.Any("error", err), slog.String("run_id", runID))
			return err
		}
		logger.Audit().Warn("运行中止",
			slog.String("run_id", runID),
			slog.String("saga_id", record.SagaID),
			slog.String("reason", reason),
		)
		return nil
	}

	if err := r.store.MarkCompleted(ctx, runID); err != nil {
		logger.L().Error("标记运行完成失败", slog.Any("error", err), slog.String("run_id", runID))
		return err
	}
	logger.Audit().Info("运行完成",
		slog.String("run_id", runID),
		slog.String("saga_id", record.SagaID),
	)
	return nil
}

// outcomeEntry 将步骤结果转换为对话记录。
func outcomeEntry(outcome saga.StepOutcome) *transcript.Entry {
	description := outcome.Description
	if description == "" {
		description = string(outcome.Kind)
	}
	content := description
	switch outcome.Status {
	case saga.StepStatusSucceeded:
		content = fmt.Sprintf("%s 完成", description)
		if link, ok := outcome.Output["invite_link"].(string); ok && link != "" {
			content += ": " + link
		} else if hash, ok := outcome.Output["tx_hash"].(string); ok && hash != "" {
			content += " (tx " + hash + ")"
		}
	case saga.StepStatusFailed:
		content = fmt.Sprintf("%s 失败: %v", description, outcome.Err)
	}
	return &transcript.Entry{
		SagaID:  outcome.SagaID,
		Role:    transcript.RoleSystem,
		Content: content,
	}
}

func (r *Runner) logDebug(msg string, attrs ...slog.Attr) {
	if r.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		r.logger.Debug(msg, args...)
	}
}

func (r *Runner) emitAlert(ctx context.Context, record *Record, outcome saga.StepOutcome) {
	if r == nil || r.alerter == nil {
		return
	}
	code := xerrors.CodeOf(outcome.Err)
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if outcome.Err != nil {
		message = outcome.Err.Error()
	}
	event := alerting.Event{
		Code:     code,
		Message:  message,
		Severity: attrs.Severity,
		RunID:    record.ID,
		SagaID:   record.SagaID,
		StepID:   outcome.StepID,
		Metadata: map[string]string{
			"kind":        string(outcome.Kind),
			"criticality": string(outcome.Criticality),
		},
		OccurredAt: time.Now(),
	}
	if err := r.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("run_id", record.ID),
			slog.String("step_id", outcome.StepID),
		)
	}
}
