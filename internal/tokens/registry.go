package tokens

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "LaunchMCP-Chain/internal/errors"
)

// Definitions models the structure of configs/tokens.yaml.
type Definitions struct {
	Tokens map[string]Definition `yaml:"tokens"`
}

// Definition describes a single tradable token.
type Definition struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Native   bool   `yaml:"native"`
	Wrapped  string `yaml:"wrapped"`
}

// Token is the resolved view handed to the swap pipeline.
type Token struct {
	Symbol   string
	Address  string
	Decimals uint8
	Native   bool
	// WrappedAddress carries the wrapped representation for native
	// tokens. Empty for regular ERC-20 tokens.
	WrappedAddress string
}

// Registry resolves token symbols case-insensitively.
type Registry struct {
	bySymbol map[string]Token
}

// LoadRegistry parses the YAML file containing the token definitions.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return NewRegistry(nil), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取代币注册表失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("解析代币注册表失败: %w", err)
	}
	return NewRegistry(defs.Tokens), nil
}

// NewRegistry builds a registry from in-memory definitions.
func NewRegistry(defs map[string]Definition) *Registry {
	bySymbol := make(map[string]Token, len(defs))
	for symbol, def := range defs {
		key := strings.ToUpper(strings.TrimSpace(symbol))
		if key == "" {
			continue
		}
		bySymbol[key] = Token{
			Symbol:         key,
			Address:        def.Address,
			Decimals:       def.Decimals,
			Native:         def.Native,
			WrappedAddress: def.Wrapped,
		}
	}
	return &Registry{bySymbol: bySymbol}
}

// Resolve returns the token for a symbol, or an UNKNOWN_TOKEN error.
func (r *Registry) Resolve(symbol string) (Token, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if token, ok := r.bySymbol[key]; ok {
		return token, nil
	}
	return Token{}, xerrors.New(xerrors.CodeUnknownToken,
		fmt.Sprintf("未知代币符号: %s", symbol),
		xerrors.WithMetadata("symbol", symbol))
}

// SpendAddress returns the address used for allowance and swap input.
// Native tokens spend through their wrapped representation.
func (t Token) SpendAddress() string {
	if t.Native && t.WrappedAddress != "" {
		return t.WrappedAddress
	}
	return t.Address
}

// Symbols lists every registered symbol. Intended for diagnostics.
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}
	return symbols
}
