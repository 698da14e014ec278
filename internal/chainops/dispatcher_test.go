package chainops

import (
	"context"
	"math/big"
	"testing"

	xerrors "LaunchMCP-Chain/internal/errors"
	"LaunchMCP-Chain/internal/saga"
)

type fakeMinter struct {
	params MintParams
	result MintResult
	err    error
}

func (f *fakeMinter) MintToken(_ context.Context, params MintParams) (MintResult, error) {
	f.params = params
	return f.result, f.err
}

type fakeReader struct {
	result AllowanceResult
}

func (f *fakeReader) Allowance(_ context.Context, _ AllowanceParams) (AllowanceResult, error) {
	return f.result, nil
}

func TestDispatcherMintToken(t *testing.T) {
	minter := &fakeMinter{result: MintResult{
		TokenAddress: "0xabc",
		TxHash:       "0x1",
		MetadataURI:  "ipfs://meta",
	}}
	dispatcher := &Dispatcher{Minter: minter}

	output, err := dispatcher.Invoke(context.Background(), saga.KindMintToken, map[string]any{
		"name":     "Moon",
		"symbol":   "MOON",
		"decimals": int64(9),
		"amount":   "10000000000",
	})
	if err != nil {
		t.Fatalf("分发失败: %v", err)
	}
	if output["token_address"] != "0xabc" || output["tx_hash"] != "0x1" {
		t.Fatalf("输出不完整: %v", output)
	}
	if minter.params.Decimals != 9 {
		t.Fatalf("精度解码错误: %d", minter.params.Decimals)
	}
	if minter.params.Amount.Cmp(big.NewInt(10_000_000_000)) != 0 {
		t.Fatalf("金额解码错误: %s", minter.params.Amount)
	}
}

func TestDispatcherMissingParam(t *testing.T) {
	dispatcher := &Dispatcher{Minter: &fakeMinter{}}

	_, err := dispatcher.Invoke(context.Background(), saga.KindMintToken, map[string]any{
		"name": "Moon",
	})
	if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("缺少参数应返回 INVALID_ARGUMENT: %v", err)
	}
}

func TestDispatcherBadAmount(t *testing.T) {
	dispatcher := &Dispatcher{Minter: &fakeMinter{}}

	_, err := dispatcher.Invoke(context.Background(), saga.KindMintToken, map[string]any{
		"name":     "Moon",
		"symbol":   "MOON",
		"decimals": int64(9),
		"amount":   "not-a-number",
	})
	if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("非法金额应返回 INVALID_ARGUMENT: %v", err)
	}
}

func TestDispatcherAllowanceEncodesBigInt(t *testing.T) {
	dispatcher := &Dispatcher{Reader: &fakeReader{result: AllowanceResult{
		CurrentAllowance: big.NewInt(42),
		NeedsApproval:    true,
	}}}

	output, err := dispatcher.Invoke(context.Background(), saga.KindCheckAllowance, map[string]any{
		"owner":         "0xowner",
		"token_address": "0xtoken",
		"spender":       "0xrouter",
		"amount":        "100",
	})
	if err != nil {
		t.Fatalf("分发失败: %v", err)
	}
	if output["current_allowance"] != "42" {
		t.Fatalf("额度应编码为十进制字符串: %v", output["current_allowance"])
	}
	if output["needs_approval"] != true {
		t.Fatalf("needs_approval 编码错误: %v", output["needs_approval"])
	}
}

func TestDispatcherUnknownKind(t *testing.T) {
	dispatcher := &Dispatcher{}

	_, err := dispatcher.Invoke(context.Background(), saga.Kind("BURN_TOKEN"), nil)
	if !xerrors.IsCode(err, xerrors.CodeInvalidSagaDefinition) {
		t.Fatalf("未知类型应返回 INVALID_SAGA_DEFINITION: %v", err)
	}
}

func TestDispatcherMissingCapability(t *testing.T) {
	dispatcher := &Dispatcher{}

	_, err := dispatcher.Invoke(context.Background(), saga.KindMintToken, map[string]any{
		"name":     "Moon",
		"symbol":   "MOON",
		"decimals": int64(9),
		"amount":   "1",
	})
	if !xerrors.IsCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("缺少能力应返回 INITIALIZATION_FAILURE: %v", err)
	}
}
