package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"LaunchMCP-Chain/internal/chainops"
	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/metadata"
	"LaunchMCP-Chain/pkg/logger"
)

// MintToken publishes the token metadata, derives the deterministic
// token address from the factory and submits the creation transaction.
func (c *Client) MintToken(ctx context.Context, params chainops.MintParams) (chainops.MintResult, error) {
	metadataURI := ""
	if c.metadata != nil {
		uri, err := c.metadata.Upload(ctx, metadata.TokenMetadata{
			Name:        params.Name,
			Symbol:      params.Symbol,
			Description: params.Description,
			ImageURL:    params.ImageURL,
		})
		if err != nil {
			return chainops.MintResult{}, err
		}
		metadataURI = uri
	}

	// The factory exposes the address the token will occupy before the
	// creation transaction is sent.
	var out []any
	if err := c.call(ctx, c.contracts.TokenFactory, c.abis.tokenFactory,
		"computeTokenAddress", &out, c.signer.Address(), params.Name, params.Symbol); err != nil {
		return chainops.MintResult{}, err
	}
	tokenAddress, ok := firstOutput[common.Address](out)
	if !ok {
		return chainops.MintResult{}, xerrors.New(xerrors.CodeSubmissionFailed, "代币地址解析失败")
	}

	tx, err := c.transact(ctx, c.contracts.TokenFactory, c.abis.tokenFactory,
		"createToken", nil, params.Name, params.Symbol, params.Decimals, params.Amount, metadataURI)
	if err != nil {
		return chainops.MintResult{}, err
	}

	logger.Named("ethereum").Info("token minted",
		"token", tokenAddress.Hex(), "tx", tx.Hash().Hex())
	return chainops.MintResult{
		TokenAddress: tokenAddress.Hex(),
		TxHash:       tx.Hash().Hex(),
		MetadataURI:  metadataURI,
	}, nil
}

// CreateMarket registers a trading market for the token pair.
func (c *Client) CreateMarket(ctx context.Context, params chainops.MarketParams) (chainops.MarketResult, error) {
	base := common.HexToAddress(params.TokenAddress)
	quote := common.HexToAddress(params.QuoteAddress)

	var out []any
	if err := c.call(ctx, c.contracts.MarketFactory, c.abis.marketFactory,
		"computeMarketId", &out, base, quote); err != nil {
		return chainops.MarketResult{}, err
	}
	marketID, ok := firstOutput[[32]byte](out)
	if !ok {
		return chainops.MarketResult{}, xerrors.New(xerrors.CodeSubmissionFailed, "市场 ID 解析失败")
	}

	tx, err := c.transact(ctx, c.contracts.MarketFactory, c.abis.marketFactory,
		"createMarket", nil, base, quote)
	if err != nil {
		return chainops.MarketResult{}, err
	}

	return chainops.MarketResult{
		MarketID: common.Hash(marketID).Hex(),
		TxHash:   tx.Hash().Hex(),
	}, nil
}

// CreatePool seeds the AMM pool for an existing market.
func (c *Client) CreatePool(ctx context.Context, params chainops.PoolParams) (chainops.PoolResult, error) {
	marketID := common.HexToHash(params.MarketID)
	base := common.HexToAddress(params.TokenAddress)
	quote := common.HexToAddress(params.QuoteAddress)

	var out []any
	if err := c.call(ctx, c.contracts.PoolFactory, c.abis.poolFactory,
		"computePoolId", &out, [32]byte(marketID)); err != nil {
		return chainops.PoolResult{}, err
	}
	poolID, ok := firstOutput[[32]byte](out)
	if !ok {
		return chainops.PoolResult{}, xerrors.New(xerrors.CodeSubmissionFailed, "池子 ID 解析失败")
	}

	tx, err := c.transact(ctx, c.contracts.PoolFactory, c.abis.poolFactory,
		"createPool", nil, [32]byte(marketID), base, quote, params.BaseAmount, params.QuoteAmount)
	if err != nil {
		return chainops.PoolResult{}, err
	}

	return chainops.PoolResult{
		PoolID: common.Hash(poolID).Hex(),
		TxHash: tx.Hash().Hex(),
	}, nil
}

// Allowance reads the current ERC-20 allowance. The returned snapshot
// is advisory only.
func (c *Client) Allowance(ctx context.Context, params chainops.AllowanceParams) (chainops.AllowanceResult, error) {
	owner := common.HexToAddress(params.Owner)
	spender := common.HexToAddress(params.Spender)
	token := common.HexToAddress(params.TokenAddress)

	var out []any
	if err := c.call(ctx, token, c.abis.erc20, "allowance", &out, owner, spender); err != nil {
		return chainops.AllowanceResult{}, err
	}
	current, ok := firstOutput[*big.Int](out)
	if !ok {
		return chainops.AllowanceResult{}, xerrors.New(xerrors.CodeSubmissionFailed, "额度解析失败")
	}

	needsApproval := false
	if params.Amount != nil {
		needsApproval = current.Cmp(params.Amount) < 0
	}
	return chainops.AllowanceResult{
		CurrentAllowance: current,
		NeedsApproval:    needsApproval,
	}, nil
}

// Approve raises the ERC-20 allowance for the spender.
func (c *Client) Approve(ctx context.Context, params chainops.ApproveParams) (chainops.ApproveResult, error) {
	token := common.HexToAddress(params.TokenAddress)
	spender := common.HexToAddress(params.Spender)

	tx, err := c.transact(ctx, token, c.abis.erc20, "approve", nil, spender, params.Amount)
	if err != nil {
		return chainops.ApproveResult{}, err
	}
	return chainops.ApproveResult{TxHash: tx.Hash().Hex()}, nil
}

// Swap submits an exact-input swap through the router. Value is only
// attached when the input token is the wrapped native asset.
func (c *Client) Swap(ctx context.Context, params chainops.SwapParams) (chainops.SwapResult, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return chainops.SwapResult{}, xerrors.New(xerrors.CodeInvalidAmount,
			fmt.Sprintf("非法的兑换数量: %v", params.AmountIn))
	}

	recipient := c.signer.Address()
	if params.Recipient != "" {
		recipient = common.HexToAddress(params.Recipient)
	}
	minOut := params.MinAmountOut
	if minOut == nil {
		minOut = big.NewInt(0)
	}

	call := exactInputSingleParams{
		TokenIn:           common.HexToAddress(params.TokenIn),
		TokenOut:          common.HexToAddress(params.TokenOut),
		Fee:               big.NewInt(params.FeeTier),
		Recipient:         recipient,
		Deadline:          big.NewInt(params.Deadline),
		AmountIn:          params.AmountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	tx, err := c.transact(ctx, c.contracts.SwapRouter, c.abis.swapRouter,
		"exactInputSingle", params.Value, call)
	if err != nil {
		return chainops.SwapResult{}, err
	}
	return chainops.SwapResult{TxHash: tx.Hash().Hex()}, nil
}

func firstOutput[T any](out []any) (T, bool) {
	var zero T
	if len(out) == 0 {
		return zero, false
	}
	value, ok := out[0].(T)
	if !ok {
		return zero, false
	}
	return value, true
}

var (
	_ chainops.TokenMinter       = (*Client)(nil)
	_ chainops.MarketCreator     = (*Client)(nil)
	_ chainops.PoolCreator       = (*Client)(nil)
	_ chainops.AllowanceReader   = (*Client)(nil)
	_ chainops.AllowanceApprover = (*Client)(nil)
	_ chainops.SwapExecutor      = (*Client)(nil)
)
