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


package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inference-facilitator/pkg/config"
)

// redisBackend Redis 列表：RPUSH 入队，BLPOP 出队
type redisBackend struct {
	client *redis.Client
	key    string
}

// NewRedis 连接 Redis 并校验连通性
func NewRedis(ctx context.Context, cfg config.RedisConfig, key string) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return NewRedisWithClient(client, cfg.KeyPrefix+key), nil
}

// NewRedisWithClient 使用已有客户端
func NewRedisWithClient(client *redis.Client, key string) Backend {
	return &redisBackend{client: client, key: key}
}

func (r *redisBackend) Push(ctx context.Context, record []byte) error {
	if err := r.client.RPush(ctx, r.key, record).Err(); err != nil {
		return unavailable("push", err)
	}
	return nil
}

func (r *redisBackend) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := r.client.BLPop(ctx, timeout, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable("pop", err)
	}
	// BLPOP 返回 [key, value]
	if len(res) != 2 {
		return nil, unavailable("pop", fmt.Errorf("unexpected BLPOP reply of %d elements", len(res)))
	}
	return []byte(res[1]), nil
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}
