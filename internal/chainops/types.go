package chainops

import (
	"context"
	"math/big"
)

// MintParams 描述一次代币铸造。
type MintParams struct {
	Name        string
	Symbol      string
	Description string
	ImageURL    string
	Decimals    uint8
	Amount      *big.Int
}

// MintResult 是铸造成功后的完整输出。失败时不会返回部分结果。
type MintResult struct {
	TokenAddress string
	TxHash       string
	MetadataURI  string
}

// GroupParams 描述一次社交群组创建。
type GroupParams struct {
	GroupName    string
	Description  string
	ImageURL     string
	TokenAddress string
}

// GroupResult 是群组创建成功后的输出。
type GroupResult struct {
	GroupID    string
	GroupName  string
	InviteLink string
}

// MarketParams 描述一次交易市场创建。
type MarketParams struct {
	TokenAddress string
	QuoteAddress string
}

// MarketResult 是市场创建成功后的输出。
type MarketResult struct {
	MarketID string
	TxHash   string
}

// PoolParams 描述一次流动性池创建与注入。
type PoolParams struct {
	MarketID     string
	TokenAddress string
	QuoteAddress string
	BaseAmount   *big.Int
	QuoteAmount  *big.Int
}

// PoolResult 是池子创建成功后的输出。
type PoolResult struct {
	PoolID string
	TxHash string
}

// AllowanceParams 描述一次额度查询。
type AllowanceParams struct {
	Owner        string
	TokenAddress string
	Spender      string
	Amount       *big.Int
}

// AllowanceResult 携带查询时刻的额度快照。该快照仅用于
// 决定是否需要授权，不构成兑换成功的保证。
type AllowanceResult struct {
	CurrentAllowance *big.Int
	NeedsApproval    bool
}

// ApproveParams 描述一次额度授权。
type ApproveParams struct {
	TokenAddress string
	Spender      string
	Amount       *big.Int
}

// ApproveResult 是授权确认后的输出。
type ApproveResult struct {
	TxHash string
}

// SwapParams 描述一次兑换。Value 仅在花费原生代币时非零。
type SwapParams struct {
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	MinAmountOut *big.Int
	FeeTier      int64
	Deadline     int64
	Recipient    string
	Value        *big.Int
}

// SwapResult 是兑换确认后的输出。
type SwapResult struct {
	TxHash string
}

// TokenMinter 铸造新代币。
type TokenMinter interface {
	MintToken(ctx context.Context, params MintParams) (MintResult, error)
}

// SocialAnnouncer 创建社交群组并发布公告。
type SocialAnnouncer interface {
	CreateGroup(ctx context.Context, params GroupParams) (GroupResult, error)
}

// MarketCreator 创建交易市场。
type MarketCreator interface {
	CreateMarket(ctx context.Context, params MarketParams) (MarketResult, error)
}

// PoolCreator 创建并注入流动性池。
type PoolCreator interface {
	CreatePool(ctx context.Context, params PoolParams) (PoolResult, error)
}

// AllowanceReader 查询 ERC-20 额度。
type AllowanceReader interface {
	Allowance(ctx context.Context, params AllowanceParams) (AllowanceResult, error)
}

// AllowanceApprover 授权 ERC-20 额度。
type AllowanceApprover interface {
	Approve(ctx context.Context, params ApproveParams) (ApproveResult, error)
}

// SwapExecutor 执行兑换。
type SwapExecutor interface {
	Swap(ctx context.Context, params SwapParams) (SwapResult, error)
}
