package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
	"LaunchMCP-Chain/pkg/logger"
)

// Service 负责运行的登记与查询。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造运行服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit 登记一次新的工作流运行并推送到队列。
func (s *Service) Submit(ctx context.Context, kind Kind, owner string, sagaRun *saga.Run) (*Record, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行服务未初始化")
	}
	if sagaRun == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工作流运行不能为空")
	}

	record := &Record{
		ID:     uuid.NewString(),
		SagaID: sagaRun.SagaID,
		Kind:   kind,
		Owner:  owner,
		Status: StatusPending,
		Saga:   sagaRun,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, record.ID); err != nil {
		logger.L().Error("运行入队失败", slog.Any("error", err), slog.String("run_id", record.ID))
		wrapped := xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布运行到队列失败")
		_ = s.store.MarkAborted(ctx, record.ID, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("运行入队成功",
		slog.String("run_id", record.ID),
		slog.String("saga_id", record.SagaID),
		slog.String("kind", string(kind)),
		slog.String("owner", owner),
	)
	return record, nil
}

// Get 返回指定运行的快照。
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	if s.store == nil {
		return View{}, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return record.Snapshot(), nil
}

// Stats 返回运行统计信息。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "运行存储未初始化")
	}
	return s.store.Stats(ctx)
}

// WaitUntilTerminal 在指定间隔内轮询运行状态，直到到达终态。
func (s *Service) WaitUntilTerminal(ctx context.Context, id string, interval time.Duration) (View, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := s.Get(ctx, id)
		if err != nil {
			return View{}, err
		}
		if view.Status == StatusCompleted || view.Status == StatusAborted {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return View{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
