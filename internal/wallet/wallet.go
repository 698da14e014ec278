package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 是注入给链上客户端的签名能力。客户端从不直接
// 接触私钥，签名细节被封装在实现内部。
type Signer interface {
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	Address() common.Address
}

// KeystoreConfig 描述基于 keystore 文件的签名钱包。
type KeystoreConfig struct {
	KeystoreDir  string
	Address      string
	PasswordFile string
	ChainID      *big.Int
}

// KeystoreSigner 使用 go-ethereum keystore 管理私钥。
type KeystoreSigner struct {
	store   *keystore.KeyStore
	account accounts.Account
	chainID *big.Int
}

// NewKeystoreSigner 解锁配置指定的账户并返回签名器。
func NewKeystoreSigner(cfg KeystoreConfig) (*KeystoreSigner, error) {
	if cfg.KeystoreDir == "" {
		return nil, errors.New("未配置 keystore 目录")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("未配置链 ID")
	}

	store := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)

	address := common.HexToAddress(cfg.Address)
	var account accounts.Account
	found := false
	for _, candidate := range store.Accounts() {
		if candidate.Address == address {
			account = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("keystore 中不存在账户 %s", cfg.Address)
	}

	password := ""
	if cfg.PasswordFile != "" {
		content, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("读取密码文件失败: %w", err)
		}
		password = strings.TrimSpace(string(content))
	}
	if err := store.Unlock(account, password); err != nil {
		return nil, fmt.Errorf("解锁账户失败: %w", err)
	}

	return &KeystoreSigner{
		store:   store,
		account: account,
		chainID: new(big.Int).Set(cfg.ChainID),
	}, nil
}

// TransactOpts 返回绑定到当前账户与链 ID 的交易选项。
func (s *KeystoreSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyStoreTransactorWithChainID(s.store, s.account, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("构建交易签名器失败: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Address 返回签名账户地址。
func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

// KeySigner 直接持有私钥，用于测试与本地开发。
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewKeySigner 基于内存私钥构建签名器。
func NewKeySigner(key *ecdsa.PrivateKey, chainID *big.Int) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}
}

// TransactOpts 返回绑定到内存私钥的交易选项。
func (s *KeySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("构建交易签名器失败: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Address 返回签名账户地址。
func (s *KeySigner) Address() common.Address {
	return s.address
}

var (
	_ Signer = (*KeystoreSigner)(nil)
	_ Signer = (*KeySigner)(nil)
)
