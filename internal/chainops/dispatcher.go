package chainops

import (
	"context"
	"fmt"
	"math/big"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
)

// Dispatcher 将工作流步骤分发到具体的能力实现。
// 步骤类型是封闭枚举，新增类型必须同时扩展这里的 switch。
type Dispatcher struct {
	Minter    TokenMinter
	Announcer SocialAnnouncer
	Markets   MarketCreator
	Pools     PoolCreator
	Reader    AllowanceReader
	Approver  AllowanceApprover
	Swapper   SwapExecutor
}

// Invoke 实现 saga.StepInvoker。
func (d *Dispatcher) Invoke(ctx context.Context, kind saga.Kind, params map[string]any) (map[string]any, error) {
	switch kind {
	case saga.KindMintToken:
		return d.mintToken(ctx, params)
	case saga.KindCreateSocialGroup:
		return d.createSocialGroup(ctx, params)
	case saga.KindCreateMarket:
		return d.createMarket(ctx, params)
	case saga.KindCreateAMMPool:
		return d.createAMMPool(ctx, params)
	case saga.KindCheckAllowance:
		return d.checkAllowance(ctx, params)
	case saga.KindApproveAllowance:
		return d.approveAllowance(ctx, params)
	case saga.KindExecuteSwap:
		return d.executeSwap(ctx, params)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidSagaDefinition,
			fmt.Sprintf("不支持的步骤类型: %s", kind))
	}
}

func (d *Dispatcher) mintToken(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Minter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "铸造能力未配置")
	}
	name, err := stringParam(params, "name")
	if err != nil {
		return nil, err
	}
	symbol, err := stringParam(params, "symbol")
	if err != nil {
		return nil, err
	}
	amount, err := bigIntParam(params, "amount")
	if err != nil {
		return nil, err
	}
	decimals, err := intParam(params, "decimals")
	if err != nil {
		return nil, err
	}

	result, err := d.Minter.MintToken(ctx, MintParams{
		Name:        name,
		Symbol:      symbol,
		Description: optionalString(params, "description"),
		ImageURL:    optionalString(params, "image_url"),
		Decimals:    uint8(decimals),
		Amount:      amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"token_address": result.TokenAddress,
		"tx_hash":       result.TxHash,
		"metadata_uri":  result.MetadataURI,
	}, nil
}

func (d *Dispatcher) createSocialGroup(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Announcer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "社交群组能力未配置")
	}
	groupName, err := stringParam(params, "group_name")
	if err != nil {
		return nil, err
	}
	tokenAddress, err := stringParam(params, "token_address")
	if err != nil {
		return nil, err
	}

	result, err := d.Announcer.CreateGroup(ctx, GroupParams{
		GroupName:    groupName,
		Description:  optionalString(params, "description"),
		ImageURL:     optionalString(params, "image_url"),
		TokenAddress: tokenAddress,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"group_id":    result.GroupID,
		"group_name":  result.GroupName,
		"invite_link": result.InviteLink,
	}, nil
}

func (d *Dispatcher) createMarket(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Markets == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "市场创建能力未配置")
	}
	tokenAddress, err := stringParam(params, "token_address")
	if err != nil {
		return nil, err
	}
	quoteAddress, err := stringParam(params, "quote_address")
	if err != nil {
		return nil, err
	}

	result, err := d.Markets.CreateMarket(ctx, MarketParams{
		TokenAddress: tokenAddress,
		QuoteAddress: quoteAddress,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"market_id": result.MarketID,
		"tx_hash":   result.TxHash,
	}, nil
}

func (d *Dispatcher) createAMMPool(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Pools == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "流动性池能力未配置")
	}
	marketID, err := stringParam(params, "market_id")
	if err != nil {
		return nil, err
	}
	tokenAddress, err := stringParam(params, "token_address")
	if err != nil {
		return nil, err
	}
	quoteAddress, err := stringParam(params, "quote_address")
	if err != nil {
		return nil, err
	}
	baseAmount, err := bigIntParam(params, "base_amount")
	if err != nil {
		return nil, err
	}
	quoteAmount, err := bigIntParam(params, "quote_amount")
	if err != nil {
		return nil, err
	}

	result, err := d.Pools.CreatePool(ctx, PoolParams{
		MarketID:     marketID,
		TokenAddress: tokenAddress,
		QuoteAddress: quoteAddress,
		BaseAmount:   baseAmount,
		QuoteAmount:  quoteAmount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pool_id": result.PoolID,
		"tx_hash": result.TxHash,
	}, nil
}

func (d *Dispatcher) checkAllowance(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Reader == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "额度查询能力未配置")
	}
	owner, err := stringParam(params, "owner")
	if err != nil {
		return nil, err
	}
	tokenAddress, err := stringParam(params, "token_address")
	if err != nil {
		return nil, err
	}
	spender, err := stringParam(params, "spender")
	if err != nil {
		return nil, err
	}
	amount, err := bigIntParam(params, "amount")
	if err != nil {
		return nil, err
	}

	result, err := d.Reader.Allowance(ctx, AllowanceParams{
		Owner:        owner,
		TokenAddress: tokenAddress,
		Spender:      spender,
		Amount:       amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"current_allowance": result.CurrentAllowance.String(),
		"needs_approval":    result.NeedsApproval,
	}, nil
}

func (d *Dispatcher) approveAllowance(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Approver == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "额度授权能力未配置")
	}
	tokenAddress, err := stringParam(params, "token_address")
	if err != nil {
		return nil, err
	}
	spender, err := stringParam(params, "spender")
	if err != nil {
		return nil, err
	}
	amount, err := bigIntParam(params, "amount")
	if err != nil {
		return nil, err
	}

	result, err := d.Approver.Approve(ctx, ApproveParams{
		TokenAddress: tokenAddress,
		Spender:      spender,
		Amount:       amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tx_hash": result.TxHash}, nil
}

func (d *Dispatcher) executeSwap(ctx context.Context, params map[string]any) (map[string]any, error) {
	if d.Swapper == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "兑换能力未配置")
	}
	tokenIn, err := stringParam(params, "token_in")
	if err != nil {
		return nil, err
	}
	tokenOut, err := stringParam(params, "token_out")
	if err != nil {
		return nil, err
	}
	amountIn, err := bigIntParam(params, "amount_in")
	if err != nil {
		return nil, err
	}
	minOut, err := bigIntParam(params, "min_amount_out")
	if err != nil {
		return nil, err
	}
	feeTier, err := intParam(params, "fee_tier")
	if err != nil {
		return nil, err
	}
	deadline, err := intParam(params, "deadline")
	if err != nil {
		return nil, err
	}

	value := big.NewInt(0)
	if raw, ok := params["value"]; ok && raw != nil {
		value, err = parseBigInt("value", raw)
		if err != nil {
			return nil, err
		}
	}

	result, err := d.Swapper.Swap(ctx, SwapParams{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		FeeTier:      feeTier,
		Deadline:     deadline,
		Recipient:    optionalString(params, "recipient"),
		Value:        value,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tx_hash": result.TxHash}, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("缺少参数 %s", key))
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数 %s 必须是非空字符串", key))
	}
	return value, nil
}

func optionalString(params map[string]any, key string) string {
	if raw, ok := params[key]; ok {
		if value, ok := raw.(string); ok {
			return value
		}
	}
	return ""
}

// bigIntParam 解析十进制字符串形式的大整数参数。
// 金额在绑定中始终以字符串传递，避免 JSON 浮点精度问题。
func bigIntParam(params map[string]any, key string) (*big.Int, error) {
	raw, ok := params[key]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("缺少参数 %s", key))
	}
	return parseBigInt(key, raw)
}

func parseBigInt(key string, raw any) (*big.Int, error) {
	text, ok := raw.(string)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数 %s 必须是十进制字符串", key))
	}
	value, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数 %s 不是合法的十进制数: %s", key, text))
	}
	return value, nil
}

func intParam(params map[string]any, key string) (int64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("缺少参数 %s", key))
	}
	switch value := raw.(type) {
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	case float64:
		return int64(value), nil
	default:
		return 0, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数 %s 必须是整数", key))
	}
}

// ensure interface compliance at compile time
var _ saga.StepInvoker = (*Dispatcher)(nil)
