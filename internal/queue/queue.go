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

	"inference-facilitator/internal/job"
	"inference-facilitator/pkg/config"
	pkgerrors "inference-facilitator/pkg/errors"
	"inference-facilitator/pkg/metrics"
)

// Backend 队列存储：Push 追加到队尾，Pop 破坏性地取出队首（至多一次投递）
type Backend interface {
	Push(ctx context.Context, record []byte) error
	// Pop 最多阻塞 timeout；无记录时返回 nil, nil
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Queue 结算任务队列：入队时编码 Job，出队时解码并校验
type Queue struct {
	backend Backend
	metrics *metrics.Recorder
}

// New 创建 Queue；rec 可为 nil
func New(backend Backend, rec *metrics.Recorder) *Queue {
	return &Queue{backend: backend, metrics: rec}
}

// Open 按配置创建 Backend 并包装为 Queue
func Open(ctx context.Context, cfg config.QueueConfig, rec *metrics.Recorder) (*Queue, error) {
	key := cfg.Key
	if key == "" {
		key = config.DefaultQueueKey
	}
	var (
		backend Backend
		err     error
	)
	switch cfg.Type {
	case "", "redis":
		backend, err = NewRedis(ctx, cfg.Redis, key)
	case "postgres":
		backend, err = NewPostgres(ctx, cfg.DSN, key, config.ParseDuration(cfg.PollInterval, defaultPollInterval))
	case "memory":
		backend = NewMemory()
	default:
		err = fmt.Errorf("unsupported queue type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, rec), nil
}

// Enqueue 编码并入队，返回 Job ID
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) (string, error) {
	record, err := job.Encode(j)
	if err != nil {
		return "", err
	}
	if err := q.backend.Push(ctx, record); err != nil {
		return "", err
	}
	q.metrics.RequestReceived(string(j.Kind), j.Network())
	return j.ID(), nil
}

// EnqueuePayment 入队一笔立即结算的支付
func (q *Queue) EnqueuePayment(ctx context.Context, payload *job.PaymentPayload, requirements *job.PaymentRequirements) (string, error) {
	if payload == nil || requirements == nil {
		return "", fmt.Errorf("%w: payment payload and requirements are required", job.ErrInvalidJob)
	}
	return q.Enqueue(ctx, job.NewPaymentJob(payload, requirements))
}

// EnqueuePayload 入队一条载荷结算；settlementType 为 settle-batch 时由 Worker 聚合
func (q *Queue) EnqueuePayload(ctx context.Context, network, inputHash, outputHash, msg, settlementType, modelType string) (string, error) {
	return q.Enqueue(ctx, job.NewPayloadJob(network, inputHash, outputHash, msg, settlementType, modelType))
}

// Pop 取出下一条 Job；超时返回 nil, nil。
// 记录无法解码时返回包装 job.ErrInvalidJob 的错误，记录已被移出队列。
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	record, err := q.backend.Pop(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return job.Decode(record)
}

// Close 释放连接
func (q *Queue) Close() error {
	return q.backend.Close()
}

// unavailable 将连接类错误标记为 ErrUnavailable；ctx 取消原样返回
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Mark(fmt.Errorf("queue %s: %w", op, err), pkgerrors.ErrUnavailable)
}
