package transcript

import (
	"context"

	"LaunchMCP-Chain/pkg/logger"
)

// CancelledMessage 是取消操作后追加的系统消息内容。
const CancelledMessage = "Action cancelled"

// Controller 处理用户对待确认操作的取消。
// 取消是纯记录层面的操作，不会触达任何链上客户端。
type Controller struct {
	store Store
}

// NewController 创建取消控制器。
func NewController(store Store) *Controller {
	return &Controller{store: store}
}

// Cancel 清除待确认引用并追加一条取消记录。
// 引用不存在或已被确认时返回 ACTION_NOT_FOUND，不产生新记录。
func (c *Controller) Cancel(ctx context.Context, ref string) (*Entry, error) {
	cleared, err := c.store.ClearPendingAction(ctx, ref)
	if err != nil {
		return nil, err
	}

	cancelled := &Entry{
		SagaID:  cleared.SagaID,
		Role:    RoleSystem,
		Content: CancelledMessage,
	}
	if err := c.store.Append(ctx, cancelled); err != nil {
		// 引用已被清除但取消记录没有落库，留下审计线索供人工补录。
		logger.Audit().Error("取消记录写入失败",
			"saga_id", cleared.SagaID, "action_ref", ref, "error", err.Error())
		return nil, err
	}

	logger.Audit().Info("待确认操作已取消",
		"saga_id", cleared.SagaID, "action_ref", ref)
	return cancelled, nil
}
