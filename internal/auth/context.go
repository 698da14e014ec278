package auth

import "context"

// walletKey 是上下文中存储钱包地址的键类型。
type walletKey struct{}

// WithWallet 将认证后的钱包地址存储到上下文中。
func WithWallet(ctx context.Context, address string) context.Context {
	if address == "" {
		return ctx
	}
	return context.WithValue(ctx, walletKey{}, address)
}

// WalletFromContext 从上下文中提取认证后的钱包地址。
func WalletFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if address, ok := ctx.Value(walletKey{}).(string); ok {
		return address
	}
	return ""
}
