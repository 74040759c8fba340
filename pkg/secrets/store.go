// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"

	"inference-facilitator/pkg/config"
)

// Store 只读 Secret 来源；结算私钥每次使用时读取，不在进程内长期缓存
type Store interface {
	// Get 获取 secret 值；不存在时返回包装了 errors.ErrNotFound 的错误
	Get(ctx context.Context, key string) (string, error)
}

// NewStore 按配置创建 Secret Store
func NewStore(cfg config.SecretsConfig) (Store, error) {
	switch cfg.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(nil), nil
	case "file":
		return NewFileStore(cfg.Dir)
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    cfg.Vault.Address,
			Token:      cfg.Vault.Token,
			PathPrefix: cfg.Vault.PathPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Provider)
	}
}

// EnvName 将 "settlement/base-sepolia/private_key" 映射为 SETTLEMENT_BASE_SEPOLIA_PRIVATE_KEY
func EnvName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
