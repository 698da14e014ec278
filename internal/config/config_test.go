package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "launchmcp.json")
	content := `{
		"web3": {"chain": "mantle", "chain_file": "chain.yaml"},
		"tokens": {"registry_file": "tokens.yaml"},
		"swap": {"min_out_bps": 9950}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("默认监听地址不符: %s", cfg.Server.Address)
	}
	if cfg.Storage.Transcript.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("默认驱动应为 memory: %+v", cfg.Storage.Transcript)
	}
	if cfg.Launch.Decimals != 9 || cfg.Launch.MintAmount != "10000000000" {
		t.Fatalf("发币默认参数不符: %+v", cfg.Launch)
	}
	if cfg.Launch.PoolSupplyShare != 10 || cfg.Launch.QuoteAmount != "4" || cfg.Launch.QuoteSymbol != "MNT" {
		t.Fatalf("池子默认参数不符: %+v", cfg.Launch)
	}
	if cfg.Swap.DeadlineSeconds != 300 || cfg.Swap.FeeTier != 500 {
		t.Fatalf("兑换默认参数不符: %+v", cfg.Swap)
	}
	// 最小产出下限按原样透传，超出万分比范围时清零。
	if cfg.Swap.MinOutBps != 9950 {
		t.Fatalf("最小产出下限未解析: %d", cfg.Swap.MinOutBps)
	}
	if cfg.Web3.ConfirmTimeout != 120 || cfg.Web3.ConfirmPoll != 1500 {
		t.Fatalf("确认默认参数不符: %+v", cfg.Web3)
	}
	if cfg.Runner.Workers != 4 {
		t.Fatalf("执行器默认并发不符: %d", cfg.Runner.Workers)
	}

	// 相对路径应相对配置文件目录展开。
	if cfg.Web3.ChainFile != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("链配置路径未展开: %s", cfg.Web3.ChainFile)
	}
	if cfg.Tokens.RegistryFile != filepath.Join(dir, "tokens.yaml") {
		t.Fatalf("注册表路径未展开: %s", cfg.Tokens.RegistryFile)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("数据目录未展开: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("缺失的配置文件应返回错误")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应返回错误")
	}
}
