// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"path"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"inference-facilitator/pkg/errors"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string // Vault server address (e.g., http://vault:8200)
	Token      string // Vault token
	PathPrefix string // KV v2 mount (e.g., "secret")
}

type vaultStore struct {
	client *vault.Client
	mount  string
}

// NewVaultStore 创建 Vault secret store（KV v2）
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}

	mount := "secret"
	if config.PathPrefix != "" {
		mount = strings.Trim(config.PathPrefix, "/")
	}
	return &vaultStore{client: client, mount: mount}, nil
}

// Get 读取 <mount>/data/<dir(key)> 中字段 base(key)；字段不存在时回退到 "value"
func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	dir, field := path.Split(strings.Trim(key, "/"))
	secretPath := path.Join(v.mount, "data", dir)
	secret, err := v.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return "", errors.Mark(fmt.Errorf("read vault %s: %w", secretPath, err), errors.ErrUnavailable)
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Wrapf(errors.ErrNotFound, "vault secret %s", secretPath)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	if s, ok := data[field].(string); ok && s != "" {
		return s, nil
	}
	if s, ok := data["value"].(string); ok && s != "" {
		return s, nil
	}
	return "", errors.Wrapf(errors.ErrNotFound, "vault field %s in %s", field, secretPath)
}
