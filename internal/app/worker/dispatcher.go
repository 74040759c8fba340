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


package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"inference-facilitator/internal/archive"
	"inference-facilitator/internal/batch"
	"inference-facilitator/internal/job"
	"inference-facilitator/internal/merkle"
	"inference-facilitator/internal/settlement"
	"inference-facilitator/pkg/log"
	"inference-facilitator/pkg/metrics"
	"inference-facilitator/pkg/signature"
	"inference-facilitator/pkg/tracing"
)

// Source 结算任务来源；超时无 Job 时返回 nil, nil
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*job.Job, error)
}

// Backoff 主循环的等待策略
type Backoff struct {
	PollTimeout time.Duration // 单次 Pop 最长阻塞，同时决定时间触发的检查粒度
	JobError    time.Duration // 单个 Job 处理失败后的暂停
	Transport   time.Duration // 队列连接失败后的暂停
}

// DefaultBackoff 1s / 1s / 5s
func DefaultBackoff() Backoff {
	return Backoff{
		PollTimeout: time.Second,
		JobError:    time.Second,
		Transport:   5 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.PollTimeout <= 0 {
		b.PollTimeout = def.PollTimeout
	}
	if b.JobError <= 0 {
		b.JobError = def.JobError
	}
	if b.Transport <= 0 {
		b.Transport = def.Transport
	}
	return b
}

// Dispatcher 结算主循环：拉取 Job，立即结算或放入批量缓冲区，触发时按网络分组提交 Merkle 根。
// 缓冲区只由 Run 所在协程访问；多个进程各自持有独立的缓冲区，彼此不协调。
type Dispatcher struct {
	workerID string
	source   Source
	executor settlement.Executor
	signers  signature.Provider
	uploader archive.Uploader
	buffer   *batch.Buffer
	backoff  Backoff
	metrics  *metrics.Recorder
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher 创建 Dispatcher；rec 可为 nil，归档默认关闭（见 SetUploader）
func NewDispatcher(
	workerID string,
	source Source,
	executor settlement.Executor,
	signers signature.Provider,
	buffer *batch.Buffer,
	backoff Backoff,
	rec *metrics.Recorder,
	logger *log.Logger,
) *Dispatcher {
	return &Dispatcher{
		workerID: workerID,
		source:   source,
		executor: executor,
		signers:  signers,
		uploader: archive.Noop{},
		buffer:   buffer,
		backoff:  backoff.withDefaults(),
		metrics:  rec,
		logger:   logger.With("worker_id", workerID),
		sleep:    sleepCtx,
		stopCh:   make(chan struct{}),
	}
}

// SetUploader 设置批次数据归档；上传失败不影响结算
func (d *Dispatcher) SetUploader(u archive.Uploader) {
	if u == nil {
		u = archive.Noop{}
	}
	d.uploader = u
}

// Start 在后台协程运行 Run，Stop 时退出
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		select {
		case <-d.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer d.wg.Done()
		defer cancel()
		_ = d.Run(ctx)
	}()
}

// Stop 停止主循环并等待其退出；缓冲区中未 flush 的条目丢弃
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// Run 阻塞运行主循环直到 ctx 取消。退出时不 flush。
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Worker 已启动，开始监听结算任务",
		"poll_timeout", d.backoff.PollTimeout, "job_error_backoff", d.backoff.JobError, "transport_backoff", d.backoff.Transport)
	for {
		if ctx.Err() != nil {
			if n := d.buffer.Len(); n > 0 {
				d.logger.Warn("Worker 退出，缓冲区中未结算的批量条目被丢弃", "pending", n)
			}
			return ctx.Err()
		}

		if d.buffer.Expired() {
			d.flush(ctx, "timeout")
		}

		j, err := d.source.Pop(ctx, d.backoff.PollTimeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, job.ErrInvalidJob):
				d.logger.Warn("丢弃无效 Job", "error", err)
				d.metrics.JobDropped("invalid_job")
			default:
				d.logger.Error("队列不可用，稍后重试", "error", err, "backoff", d.backoff.Transport)
				d.sleep(ctx, d.backoff.Transport)
			}
			continue
		}
		if j == nil {
			continue
		}

		if err := d.handle(ctx, j); err != nil {
			d.logger.Error("处理 Job 失败", "job_id", j.ID(), "network", j.Network(), "error", err)
			d.sleep(ctx, d.backoff.JobError)
		}
	}
}

// handle 路由单个 Job：支付与非批量载荷立即结算，批量载荷进入缓冲区
func (d *Dispatcher) handle(ctx context.Context, j *job.Job) error {
	switch j.Kind {
	case job.KindPayment:
		return d.settlePayment(ctx, j.Payment)
	case job.KindPayload:
		if j.Payload.IsBatchable() {
			d.logger.Debug("批量 Job 进入缓冲区", "job_id", j.Payload.ID, "network", j.Payload.Network)
			full := d.buffer.Add(batch.Entry{
				Network:    j.Payload.Network,
				InputHash:  j.Payload.InputHash,
				OutputHash: j.Payload.OutputHash,
				Msg:        j.Payload.Msg,
			})
			if full {
				d.flush(ctx, "size")
			}
			return nil
		}
		return d.settlePayload(ctx, j.Payload)
	default:
		d.metrics.JobDropped("unknown_kind")
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (d *Dispatcher) settlePayment(ctx context.Context, p *job.PaymentJob) error {
	network := p.Requirements.Network
	d.logger.Info("处理支付结算", "job_id", p.ID, "network", network)

	res, err := d.settle(ctx, settlement.PaymentRequest(p), metrics.KindSingle, p.ID)
	if res != nil {
		if amount, perr := strconv.ParseFloat(p.Requirements.MaxAmountRequired, 64); perr == nil {
			d.metrics.TokensPaid(p.Requirements.AssetTag(), network, amount)
		}
	}
	if err != nil {
		return err
	}
	d.logger.Info("支付结算完成", "job_id", p.ID, "success", res.Success, "transaction", res.Transaction)
	return nil
}

func (d *Dispatcher) settlePayload(ctx context.Context, p *job.SettlePayloadJob) error {
	d.logger.Info("处理载荷结算", "job_id", p.ID, "network", p.Network)

	res, err := d.settle(ctx, settlement.PayloadRequest(p), metrics.KindSingleWithMetadata, p.ID)
	if err != nil {
		return err
	}
	d.logger.Info("载荷结算完成", "job_id", p.ID, "success", res.Success, "transaction", res.Transaction)
	return nil
}

// settle 取签名身份并调用 Executor，记录指标与 span
func (d *Dispatcher) settle(ctx context.Context, req settlement.Request, kind, jobID string) (res *settlement.Result, err error) {
	ctx, span := tracing.StartSettlementSpan(ctx, kind, req.Network, jobID)
	start := time.Now()
	defer func() {
		d.metrics.SettlementProcessed(req.Network, kind, err == nil && res != nil && res.Success, time.Since(start))
		tracing.EndSpan(span, err)
	}()

	cred, err := d.signers.Signer(ctx, req.Network)
	if err != nil {
		return nil, err
	}
	return d.executor.Settle(ctx, cred, req)
}

// flush 清空缓冲区并逐个网络分区结算；单个分区失败只记录日志，该分区条目丢弃
func (d *Dispatcher) flush(ctx context.Context, trigger string) {
	entries := d.buffer.Drain()
	if len(entries) == 0 {
		return
	}
	d.logger.Info("flush 批量缓冲区", "items", len(entries), "trigger", trigger)
	for _, p := range batch.Split(entries) {
		if err := d.settlePartition(ctx, p); err != nil {
			d.logger.Error("批量结算失败", "network", p.Network, "size", len(p.Entries), "error", err)
		}
	}
}

func (d *Dispatcher) settlePartition(ctx context.Context, p batch.Partition) (err error) {
	ctx, span := tracing.StartFlushSpan(ctx, p.Network, len(p.Entries))
	defer func() { tracing.EndSpan(span, err) }()

	pairs := make([][2]common.Hash, len(p.Entries))
	for i, e := range p.Entries {
		in, err := job.ParseHash(e.InputHash)
		if err != nil {
			return fmt.Errorf("entry %d inputHash: %w", i, err)
		}
		out, err := job.ParseHash(e.OutputHash)
		if err != nil {
			return fmt.Errorf("entry %d outputHash: %w", i, err)
		}
		pairs[i] = [2]common.Hash{in, out}
	}
	tree := merkle.Build(pairs)
	d.logger.Info("批量结算", "network", p.Network, "size", len(pairs), "root", tree.Root.Hex())

	d.archive(ctx, tree)

	res, err := d.settle(ctx, settlement.BatchRequest(p.Network, tree.Root, len(pairs)), metrics.KindBatch, "")
	d.metrics.BatchSettled(p.Network, len(pairs), err == nil && res != nil && res.Success)
	if err != nil {
		return err
	}
	d.logger.Info("批量结算完成", "network", p.Network, "success", res.Success, "transaction", res.Transaction)
	return nil
}

// archive 尽力上传批次数据，失败只记录日志
func (d *Dispatcher) archive(ctx context.Context, tree *merkle.Dump) {
	if _, ok := d.uploader.(archive.Noop); ok {
		return
	}
	data, err := json.Marshal(tree)
	if err != nil {
		d.logger.Error("序列化批次数据失败", "error", err)
		return
	}
	blobID, err := d.uploader.Upload(ctx, data)
	d.metrics.ArchiveUpload(err == nil)
	if err != nil {
		d.logger.Error("批次数据归档失败，继续结算", "root", tree.Root.Hex(), "error", err)
		return
	}
	d.logger.Info("批次数据已归档", "root", tree.Root.Hex(), "blob_id", blobID)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// DefaultWorkerID 返回默认 Worker 标识（hostname 或 env）
func DefaultWorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	host, _ := os.Hostname()
	if host != "" {
		return host
	}
	return "worker-unknown"
}
