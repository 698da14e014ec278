package swap

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// parseAmount 将人类可读的十进制数量转换为最小单位的整数。
// 小数位超出代币精度或数值非正都会被拒绝。
func parseAmount(text string, decimals uint8) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "数量不能为空")
	}
	if strings.HasPrefix(text, "-") {
		return nil, xerrors.New(xerrors.CodeInvalidAmount,
			fmt.Sprintf("数量必须为正数: %s", text))
	}

	whole := text
	frac := ""
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		whole = text[:idx]
		frac = text[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, xerrors.New(xerrors.CodeInvalidAmount,
				fmt.Sprintf("非法的数量格式: %s", text))
		}
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, xerrors.New(xerrors.CodeInvalidAmount,
			fmt.Sprintf("数量 %s 的小数位超出代币精度 %d", text, decimals))
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	combined := whole + frac
	value, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidAmount,
			fmt.Sprintf("非法的数量格式: %s", text))
	}
	if value.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidAmount,
			fmt.Sprintf("数量必须为正数: %s", text))
	}
	return value, nil
}
