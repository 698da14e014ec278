package swap

import (
	"math/big"
	"time"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
	"LaunchMCP-Chain/internal/tokens"
)

// Intent 是用户提交的兑换意图。数量是人类可读的十进制字符串。
type Intent struct {
	SourceSymbol string `json:"source_symbol"`
	TargetSymbol string `json:"target_symbol"`
	Amount       string `json:"amount"`
}

// Config 是兑换流程的保护参数与协作方地址。
type Config struct {
	// RouterAddress 既是授权的 spender，也是兑换的入口合约。
	RouterAddress string
	DeadlineTTL   time.Duration
	FeeTier       int64
	// MinOutBps 以万分比表示可接受的最小产出，0 表示不设下限。
	MinOutBps int64
}

// 兑换工作流的固定步骤 ID。
const (
	StepCheck   = "check_allowance"
	StepApprove = "approve"
	StepSwap    = "swap"
)

// Builder 将兑换意图展开为额度门控的工作流。
type Builder struct {
	registry *tokens.Registry
	cfg      Config
	now      func() time.Time
}

// NewBuilder 创建 Builder。
func NewBuilder(registry *tokens.Registry, cfg Config) *Builder {
	if cfg.DeadlineTTL <= 0 {
		cfg.DeadlineTTL = 5 * time.Minute
	}
	if cfg.FeeTier <= 0 {
		cfg.FeeTier = 500
	}
	return &Builder{registry: registry, cfg: cfg, now: time.Now}
}

// BuildSaga 解析符号与数量并构建工作流。符号或数量非法时
// 立刻失败，不会产生任何步骤。
//
// 原生代币通过封装地址参与兑换并随交易附带价值，无需授权，
// 因此其工作流只包含兑换一步。
func (b *Builder) BuildSaga(sagaID, owner string, intent Intent) (*saga.Run, error) {
	source, err := b.registry.Resolve(intent.SourceSymbol)
	if err != nil {
		return nil, err
	}
	target, err := b.registry.Resolve(intent.TargetSymbol)
	if err != nil {
		return nil, err
	}
	if b.cfg.RouterAddress == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置兑换路由地址")
	}

	amountIn, err := parseAmount(intent.Amount, source.Decimals)
	if err != nil {
		return nil, err
	}

	deadline := b.now().Add(b.cfg.DeadlineTTL).Unix()
	tokenIn := source.SpendAddress()
	tokenOut := target.SpendAddress()

	value := "0"
	if source.Native {
		value = amountIn.String()
	}

	swapStep := saga.Step{
		ID:          StepSwap,
		Kind:        saga.KindExecuteSwap,
		Criticality: saga.CriticalityRequired,
		Description: "执行兑换 " + source.Symbol + " → " + target.Symbol,
		Inputs: map[string]saga.Binding{
			"token_in":       saga.Literal(tokenIn),
			"token_out":      saga.Literal(tokenOut),
			"amount_in":      saga.Literal(amountIn.String()),
			"min_amount_out": saga.Literal(b.minOut(amountIn).String()),
			"fee_tier":       saga.Literal(b.cfg.FeeTier),
			"deadline":       saga.Literal(deadline),
			"recipient":      saga.Literal(owner),
			"value":          saga.Literal(value),
		},
	}

	if source.Native {
		return saga.NewRun(sagaID, []saga.Step{swapStep})
	}

	steps := []saga.Step{
		{
			ID:          StepCheck,
			Kind:        saga.KindCheckAllowance,
			Criticality: saga.CriticalityRequired,
			Description: "查询 " + source.Symbol + " 授权额度",
			Inputs: map[string]saga.Binding{
				"owner":         saga.Literal(owner),
				"token_address": saga.Literal(tokenIn),
				"spender":       saga.Literal(b.cfg.RouterAddress),
				"amount":        saga.Literal(amountIn.String()),
			},
		},
		{
			ID:          StepApprove,
			Kind:        saga.KindApproveAllowance,
			Criticality: saga.CriticalityRequired,
			Description: "授权 " + source.Symbol + " 额度",
			// 额度快照仅决定是否授权，不保证兑换成功。
			OnlyIf: func(outputs saga.Outputs) bool {
				value, ok := outputs.Field(StepCheck, "needs_approval")
				return ok && value == true
			},
			Inputs: map[string]saga.Binding{
				"token_address": saga.Literal(tokenIn),
				"spender":       saga.Literal(b.cfg.RouterAddress),
				"amount":        saga.Literal(amountIn.String()),
			},
		},
		swapStep,
	}
	return saga.NewRun(sagaID, steps)
}

// minOut 根据配置的万分比下限计算最小产出。两种代币精度
// 不同时这只是一个粗略下限，真正的保护由链上价格检查承担。
func (b *Builder) minOut(amountIn *big.Int) *big.Int {
	if b.cfg.MinOutBps <= 0 {
		return big.NewInt(0)
	}
	minOut := new(big.Int).Mul(amountIn, big.NewInt(b.cfg.MinOutBps))
	return minOut.Div(minOut, big.NewInt(10_000))
}
