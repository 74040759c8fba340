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
	"sync"
	"time"
)

// memoryBackend 进程内 FIFO，供测试与单机运行
type memoryBackend struct {
	mu      sync.Mutex
	records [][]byte
	notify  chan struct{}
}

// NewMemory 创建内存队列
func NewMemory() Backend {
	return &memoryBackend{notify: make(chan struct{}, 1)}
}

func (m *memoryBackend) Push(ctx context.Context, record []byte) error {
	m.mu.Lock()
	m.records = append(m.records, append([]byte(nil), record...))
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *memoryBackend) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if record := m.take(); record != nil {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-m.notify:
		}
	}
}

func (m *memoryBackend) take() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil
	}
	record := m.records[0]
	m.records = m.records[1:]
	if len(m.records) > 0 {
		select {
		case m.notify <- struct{}{}:
		default:
		}
	}
	return record
}

func (m *memoryBackend) Close() error { return nil }
