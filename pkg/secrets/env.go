// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"os"

	"inference-facilitator/pkg/errors"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store，key 经 EnvName 映射为变量名
func NewEnvStore() Store {
	return &envStore{}
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	name := EnvName(key)
	value := os.Getenv(name)
	if value == "" {
		return "", errors.Wrapf(errors.ErrNotFound, "environment variable %s", name)
	}
	return value, nil
}
