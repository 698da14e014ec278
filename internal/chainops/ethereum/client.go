package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/metadata"
	"LaunchMCP-Chain/internal/wallet"
)

// ContractAddresses lists the protocol contracts the client talks to.
type ContractAddresses struct {
	TokenFactory  common.Address
	MarketFactory common.Address
	PoolFactory   common.Address
	SwapRouter    common.Address
}

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name           string
	RPCURL         string
	ChainID        *big.Int
	Contracts      ContractAddresses
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Client implements the chain operation capabilities for EVM chains.
// Every submitting operation waits for its receipt before returning,
// so a nil error always means the transaction landed successfully.
type Client struct {
	name      string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	backend   bind.ContractBackend
	chainID   *big.Int
	signer    wallet.Signer
	metadata  metadata.Uploader
	contracts ContractAddresses

	confirmTimeout time.Duration
	pollInterval   time.Duration

	abis parsedABIs
	mu   sync.Mutex
}

type parsedABIs struct {
	erc20         abi.ABI
	tokenFactory  abi.ABI
	marketFactory abi.ABI
	poolFactory   abi.ABI
	swapRouter    abi.ABI
}

func parseABIs() (parsedABIs, error) {
	var parsed parsedABIs
	var err error
	if parsed.erc20, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return parsed, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if parsed.tokenFactory, err = abi.JSON(strings.NewReader(tokenFactoryABI)); err != nil {
		return parsed, fmt.Errorf("parse token factory abi: %w", err)
	}
	if parsed.marketFactory, err = abi.JSON(strings.NewReader(marketFactoryABI)); err != nil {
		return parsed, fmt.Errorf("parse market factory abi: %w", err)
	}
	if parsed.poolFactory, err = abi.JSON(strings.NewReader(poolFactoryABI)); err != nil {
		return parsed, fmt.Errorf("parse pool factory abi: %w", err)
	}
	if parsed.swapRouter, err = abi.JSON(strings.NewReader(swapRouterABI)); err != nil {
		return parsed, fmt.Errorf("parse swap router abi: %w", err)
	}
	return parsed, nil
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config, signer wallet.Signer, uploader metadata.Uploader) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	if signer == nil {
		return nil, errors.New("未提供签名钱包")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := cfg.ChainID
	if chainID == nil {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	abis, err := parseABIs()
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return &Client{
		name:           cfg.Name,
		rpcClient:      rpcClient,
		eth:            eth,
		backend:        eth,
		chainID:        new(big.Int).Set(chainID),
		signer:         signer,
		metadata:       uploader,
		contracts:      cfg.Contracts,
		confirmTimeout: defaultDuration(cfg.ConfirmTimeout, 2*time.Minute),
		pollInterval:   defaultDuration(cfg.PollInterval, 1500*time.Millisecond),
		abis:           abis,
	}, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, chainID *big.Int, backend *backends.SimulatedBackend, signer wallet.Signer, uploader metadata.Uploader, contracts ContractAddresses) (*Client, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Client{
		name:           name,
		backend:        backend,
		chainID:        new(big.Int).Set(chainID),
		signer:         signer,
		metadata:       uploader,
		contracts:      contracts,
		confirmTimeout: 10 * time.Second,
		pollInterval:   25 * time.Millisecond,
		abis:           abis,
	}, nil
}

func defaultDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

func (c *Client) bound(address common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(address, parsed, c.backend, c.backend, c.backend)
}

// call performs a read-only contract call.
func (c *Client) call(ctx context.Context, address common.Address, parsed abi.ABI, method string, out *[]any, args ...any) error {
	contract := c.bound(address, parsed)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...); err != nil {
		return xerrors.Wrap(xerrors.CodeSubmissionFailed, err,
			fmt.Sprintf("合约调用 %s 失败", method),
			xerrors.WithMetadata("contract", address.Hex()))
	}
	return nil
}

// transact signs and submits a state-changing call, then waits for the
// receipt. The returned transaction is confirmed successful.
func (c *Client) transact(ctx context.Context, address common.Address, parsed abi.ABI, method string, value *big.Int, args ...any) (*coretypes.Transaction, error) {
	auth, err := c.signer.TransactOpts(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "构建交易签名失败")
	}
	if value != nil && value.Sign() > 0 {
		auth.Value = value
	}

	contract := c.bound(address, parsed)
	tx, err := contract.Transact(auth, method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubmissionFailed, err,
			fmt.Sprintf("提交交易 %s 失败", method),
			xerrors.WithMetadata("contract", address.Hex()))
	}

	confirmation, err := c.AwaitConfirmation(ctx, tx.Hash(), c.confirmTimeout)
	if err != nil {
		return nil, err
	}
	if confirmation.Status == ConfirmationReverted {
		return nil, xerrors.New(xerrors.CodeTransactionReverted,
			fmt.Sprintf("交易 %s 被回滚", method),
			xerrors.WithMetadata("tx_hash", tx.Hash().Hex()))
	}
	return tx, nil
}
