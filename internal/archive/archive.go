// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package archive

import (
	"context"
	"errors"
	"fmt"

	"inference-facilitator/pkg/config"
)

// ErrUnexpectedResponse publisher 响应中既没有 newlyCreated 也没有 alreadyCertified
var ErrUnexpectedResponse = errors.New("unexpected response format from blob publisher")

// Uploader 上传批次 Merkle 树数据，返回 blob ID
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// New 按配置创建 Uploader
func New(cfg config.ArchiveConfig) (Uploader, error) {
	switch cfg.Type {
	case "", "none", "noop":
		return Noop{}, nil
	case "walrus":
		return NewWalrus(cfg.Walrus), nil
	default:
		return nil, fmt.Errorf("unsupported archive type: %q", cfg.Type)
	}
}

// Noop 不上传，返回空 blob ID
type Noop struct{}

// Upload 实现 Uploader
func (Noop) Upload(ctx context.Context, data []byte) (string, error) {
	return "", nil
}
