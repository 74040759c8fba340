// Copyright 2026 fanjia1024
// Mounted-file secret store (Kubernetes/Docker secrets)

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inference-facilitator/pkg/errors"
)

const defaultSecretsDir = "/etc/secrets"

type fileStore struct {
	dir string
}

// NewFileStore 从挂载目录读取 secret；key 中的 "/" 映射为子目录
func NewFileStore(dir string) (Store, error) {
	if dir == "" {
		dir = defaultSecretsDir
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets dir %s is not a directory", dir)
	}
	return &fileStore{dir: dir}, nil
}

func (f *fileStore) Get(ctx context.Context, key string) (string, error) {
	clean := filepath.Clean("/" + key)
	data, err := os.ReadFile(filepath.Join(f.dir, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(errors.ErrNotFound, "secret file %s", clean)
		}
		return "", fmt.Errorf("read secret %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}
