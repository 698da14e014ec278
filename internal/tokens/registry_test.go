package tokens

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "LaunchMCP-Chain/internal/errors"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(map[string]Definition{
		"usdt": {Address: "0x1111111111111111111111111111111111111111", Decimals: 6},
		"MNT": {
			Address:  "0x0000000000000000000000000000000000000000",
			Decimals: 18,
			Native:   true,
			Wrapped:  "0x2222222222222222222222222222222222222222",
		},
	})

	token, err := registry.Resolve("USDT")
	if err != nil {
		t.Fatalf("解析 USDT 失败: %v", err)
	}
	if token.Decimals != 6 {
		t.Fatalf("期望精度 6，实际 %d", token.Decimals)
	}
	if token.SpendAddress() != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("普通代币应使用自身地址: %s", token.SpendAddress())
	}

	// 符号匹配不区分大小写。
	if _, err := registry.Resolve("usdt"); err != nil {
		t.Fatalf("小写符号应能解析: %v", err)
	}

	native, err := registry.Resolve("MNT")
	if err != nil {
		t.Fatalf("解析原生代币失败: %v", err)
	}
	if !native.Native {
		t.Fatal("MNT 应标记为原生代币")
	}
	if native.SpendAddress() != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("原生代币应使用封装地址: %s", native.SpendAddress())
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Resolve("DOGE")
	if err == nil {
		t.Fatal("未注册符号应返回错误")
	}
	if !xerrors.IsCode(err, xerrors.CodeUnknownToken) {
		t.Fatalf("期望 UNKNOWN_TOKEN，实际 %s", xerrors.CodeOf(err))
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	content := `tokens:
  usdt:
    address: "0x1111111111111111111111111111111111111111"
    decimals: 6
  mnt:
    address: "0x0000000000000000000000000000000000000000"
    decimals: 18
    native: true
    wrapped: "0x2222222222222222222222222222222222222222"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}

	registry, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("加载注册表失败: %v", err)
	}
	if len(registry.Symbols()) != 2 {
		t.Fatalf("期望 2 个符号，实际 %d", len(registry.Symbols()))
	}
	if _, err := registry.Resolve("MNT"); err != nil {
		t.Fatalf("解析 MNT 失败: %v", err)
	}
}

func TestLoadRegistryEmptyPath(t *testing.T) {
	registry, err := LoadRegistry("  ")
	if err != nil {
		t.Fatalf("空路径应返回空注册表: %v", err)
	}
	if len(registry.Symbols()) != 0 {
		t.Fatal("空注册表不应包含符号")
	}
}
