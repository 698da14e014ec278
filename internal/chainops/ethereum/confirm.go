package ethereum

import (
	"context"
	"errors"
	"fmt"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// ConfirmationStatus reports how a transaction settled on chain.
type ConfirmationStatus string

const (
	ConfirmationSuccess  ConfirmationStatus = "SUCCESS"
	ConfirmationReverted ConfirmationStatus = "REVERTED"
)

// Confirmation is the terminal observation for a submitted transaction.
// A reverted transaction is a confirmed observation, not a timeout.
type Confirmation struct {
	Status  ConfirmationStatus
	Receipt *coretypes.Receipt
}

type receiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// AwaitConfirmation polls for the transaction receipt until the timeout
// elapses. The error for an expired deadline carries
// CONFIRMATION_TIMEOUT and never claims anything about the transaction's
// eventual fate.
func (c *Client) AwaitConfirmation(ctx context.Context, txHash common.Hash, timeout time.Duration) (Confirmation, error) {
	source, ok := c.backend.(receiptSource)
	if !ok {
		return Confirmation{}, xerrors.New(xerrors.CodeInitializationFailure, "后端不支持回执查询")
	}
	if timeout <= 0 {
		timeout = c.confirmTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := source.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == coretypes.ReceiptStatusSuccessful {
				return Confirmation{Status: ConfirmationSuccess, Receipt: receipt}, nil
			}
			return Confirmation{Status: ConfirmationReverted, Receipt: receipt}, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return Confirmation{}, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "查询交易回执失败",
				xerrors.WithMetadata("tx_hash", txHash.Hex()))
		}

		select {
		case <-ctx.Done():
			return Confirmation{}, xerrors.Wrap(xerrors.CodeConfirmationTimeout, ctx.Err(),
				fmt.Sprintf("等待交易 %s 确认被中断", txHash.Hex()),
				xerrors.WithMetadata("tx_hash", txHash.Hex()))
		case <-deadline.C:
			return Confirmation{}, xerrors.New(xerrors.CodeConfirmationTimeout,
				fmt.Sprintf("等待交易 %s 确认超时", txHash.Hex()),
				xerrors.WithMetadata("tx_hash", txHash.Hex()))
		case <-ticker.C:
			// The simulated backend only mines on demand.
			if sim, ok := c.backend.(*backends.SimulatedBackend); ok {
				sim.Commit()
			}
		}
	}
}
