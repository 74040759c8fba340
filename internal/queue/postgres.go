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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPollInterval = 100 * time.Millisecond

// Schema settlement_jobs 表结构；NewPostgres 启动时确保存在
const Schema = `CREATE TABLE IF NOT EXISTS settlement_jobs (
  id         BIGSERIAL PRIMARY KEY,
  queue      TEXT NOT NULL,
  payload    JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS settlement_jobs_queue_id_idx ON settlement_jobs (queue, id);`

// postgresBackend PostgreSQL 实现，出队用 FOR UPDATE SKIP LOCKED 保证多 Worker 互斥
type postgresBackend struct {
	pool         *pgxpool.Pool
	queue        string
	pollInterval time.Duration
}

// NewPostgres 连接数据库并建表
func NewPostgres(ctx context.Context, dsn, queue string, pollInterval time.Duration) (Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create settlement_jobs: %w", err)
	}
	return NewPostgresWithPool(pool, queue, pollInterval), nil
}

// NewPostgresWithPool 使用已有连接池；表需已存在
func NewPostgresWithPool(pool *pgxpool.Pool, queue string, pollInterval time.Duration) Backend {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &postgresBackend{pool: pool, queue: queue, pollInterval: pollInterval}
}

func (q *postgresBackend) Push(ctx context.Context, record []byte) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO settlement_jobs (queue, payload) VALUES ($1, $2)`,
		q.queue, record,
	)
	if err != nil {
		return unavailable("push", err)
	}
	return nil
}

// Pop 在 timeout 内按 pollInterval 轮询，原子删除并返回最早一条
func (q *postgresBackend) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		record, err := q.claimOne(ctx)
		if err != nil || record != nil {
			return record, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if wait > q.pollInterval {
			wait = q.pollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *postgresBackend) claimOne(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := q.pool.QueryRow(ctx,
		`DELETE FROM settlement_jobs
WHERE id = (
  SELECT id FROM settlement_jobs WHERE queue = $1 ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED
)
RETURNING payload`,
		q.queue,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("pop", err)
	}
	return payload, nil
}

func (q *postgresBackend) Close() error {
	q.pool.Close()
	return nil
}
