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

// Package batch 维护批量结算缓冲区：按条数与时间两个触发条件决定何时 flush，
// flush 时按网络分组（保持组内插入顺序）。缓冲区只由 Dispatcher 单协程读写，不加锁。
package batch

import (
	"errors"
	"time"
)

// Entry 缓冲区中保留的批量 Job 字段；modelType 与 settlement_type 入缓冲后丢弃
type Entry struct {
	Network    string `json:"network"`
	InputHash  string `json:"inputHash"`
	OutputHash string `json:"outputHash"`
	Msg        string `json:"msg"`
}

// Config 缓冲区触发阈值
type Config struct {
	// Size 条数达到该值时立即 flush，必须大于零
	Size int

	// Timeout 距上次 flush 超过该时长且缓冲区非空时 flush，必须大于零
	Timeout time.Duration

	// Now 时钟，nil 时使用 time.Now
	Now func() time.Time
}

func (c *Config) validate() error {
	switch {
	case c.Size < 1:
		return errors.New("must be greater than zero: Size")
	case c.Timeout < 1:
		return errors.New("must be greater than zero: Timeout")
	}
	return nil
}

// Buffer 批量缓冲区状态：有序条目 + 上次 flush 时间
type Buffer struct {
	size      int
	timeout   time.Duration
	now       func() time.Time
	entries   []Entry
	lastFlush time.Time
}

// NewBuffer 创建缓冲区，lastFlush 初始化为当前时间
func NewBuffer(cfg Config) (*Buffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Buffer{
		size:      cfg.Size,
		timeout:   cfg.Timeout,
		now:       now,
		entries:   make([]Entry, 0, cfg.Size),
		lastFlush: now(),
	}, nil
}

// Add 追加一条并返回是否达到条数触发条件
func (b *Buffer) Add(e Entry) bool {
	b.entries = append(b.entries, e)
	return b.Full()
}

// Full 条数触发：len >= Size
func (b *Buffer) Full() bool {
	return len(b.entries) >= b.size
}

// Expired 时间触发：非空且 now - lastFlush >= Timeout
func (b *Buffer) Expired() bool {
	return len(b.entries) > 0 && b.now().Sub(b.lastFlush) >= b.timeout
}

// Len 当前条目数
func (b *Buffer) Len() int {
	return len(b.entries)
}

// LastFlush 上次 flush 时间
func (b *Buffer) LastFlush() time.Time {
	return b.lastFlush
}

// Drain 取出全部条目（按插入顺序），清空缓冲区并重置 lastFlush
func (b *Buffer) Drain() []Entry {
	out := b.entries
	b.entries = make([]Entry, 0, b.size)
	b.lastFlush = b.now()
	return out
}
