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


package settlement

import (
	"context"
	"fmt"
	"sort"

	"inference-facilitator/pkg/config"
	"inference-facilitator/pkg/signature"
)

// Router 按网络把请求分派到对应 Executor
type Router struct {
	executors map[string]Executor
}

// NewRouter 由网络 -> Executor 映射创建 Router
func NewRouter(executors map[string]Executor) *Router {
	m := make(map[string]Executor, len(executors))
	for k, v := range executors {
		m[k] = v
	}
	return &Router{executors: m}
}

// NewHTTPRouter 为配置中的每个网络创建 HTTPExecutor
func NewHTTPRouter(cfg config.SettlementConfig) *Router {
	executors := make(map[string]Executor, len(cfg.Networks))
	for name, n := range cfg.Networks {
		executors[name] = NewHTTPExecutor(n)
	}
	return NewRouter(executors)
}

// Settle 实现 Executor
func (r *Router) Settle(ctx context.Context, cred *signature.Credential, req Request) (*Result, error) {
	exec, ok := r.executors[req.Network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, req.Network)
	}
	return exec.Settle(ctx, cred, req)
}

// Networks 已配置的网络（排序后）
func (r *Router) Networks() []string {
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
