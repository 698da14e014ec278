package launch

import (
	"math/big"
	"strings"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
)

// Intent 是用户提交的发币意图。
type Intent struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Params 是发币流程的链上参数，来自配置。
type Params struct {
	Decimals uint8
	// MintAmount 是以最小单位计的铸造总量。
	MintAmount *big.Int
	// PoolSupplyShare 是注入池子的供应量百分比。
	PoolSupplyShare int
	// QuoteAmount 是与代币配对注入的报价资产数量。
	QuoteAmount  *big.Int
	QuoteAddress string
}

// 发币工作流的固定步骤 ID。
const (
	StepMint     = "mint"
	StepAnnounce = "announce"
	StepMarket   = "market"
	StepPool     = "pool"
)

// BuildSaga 将发币意图展开为四步工作流：
// 铸造 → 群组公告（尽力而为）→ 市场创建 → 流动性注入。
func BuildSaga(sagaID string, intent Intent, params Params) (*saga.Run, error) {
	name := strings.TrimSpace(intent.Name)
	symbol := strings.TrimSpace(intent.Symbol)
	if name == "" || symbol == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "代币名称与符号不能为空")
	}
	if params.MintAmount == nil || params.MintAmount.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "铸造数量必须为正数")
	}
	if params.QuoteAddress == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置报价资产地址")
	}

	share := params.PoolSupplyShare
	if share <= 0 || share > 100 {
		share = 10
	}
	poolBase := new(big.Int).Mul(params.MintAmount, big.NewInt(int64(share)))
	poolBase.Div(poolBase, big.NewInt(100))

	quoteAmount := params.QuoteAmount
	if quoteAmount == nil {
		quoteAmount = big.NewInt(0)
	}

	steps := []saga.Step{
		{
			ID:          StepMint,
			Kind:        saga.KindMintToken,
			Criticality: saga.CriticalityRequired,
			Description: "铸造代币 " + symbol,
			Inputs: map[string]saga.Binding{
				"name":        saga.Literal(name),
				"symbol":      saga.Literal(symbol),
				"description": saga.Literal(intent.Description),
				"image_url":   saga.Literal(intent.ImageURL),
				"decimals":    saga.Literal(int64(params.Decimals)),
				"amount":      saga.Literal(params.MintAmount.String()),
			},
		},
		{
			ID:          StepAnnounce,
			Kind:        saga.KindCreateSocialGroup,
			Criticality: saga.CriticalityBestEffort,
			Description: "创建社区群组并发布合约地址",
			Inputs: map[string]saga.Binding{
				"group_name":    saga.Literal(name),
				"description":   saga.Literal(intent.Description),
				"image_url":     saga.Literal(intent.ImageURL),
				"token_address": saga.FromOutput(StepMint, "token_address"),
			},
		},
		{
			ID:          StepMarket,
			Kind:        saga.KindCreateMarket,
			Criticality: saga.CriticalityRequired,
			Description: "创建交易市场",
			Inputs: map[string]saga.Binding{
				"token_address": saga.FromOutput(StepMint, "token_address"),
				"quote_address": saga.Literal(params.QuoteAddress),
			},
		},
		{
			ID:          StepPool,
			Kind:        saga.KindCreateAMMPool,
			Criticality: saga.CriticalityRequired,
			Description: "创建并注入流动性池",
			Inputs: map[string]saga.Binding{
				"market_id":     saga.FromOutput(StepMarket, "market_id"),
				"token_address": saga.FromOutput(StepMint, "token_address"),
				"quote_address": saga.Literal(params.QuoteAddress),
				"base_amount":   saga.Literal(poolBase.String()),
				"quote_amount":  saga.Literal(quoteAmount.String()),
			},
		},
	}

	return saga.NewRun(sagaID, steps)
}
