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

package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "x402_facilitator"

// 结算种类标签
const (
	KindSingle             = "single"
	KindSingleWithMetadata = "single_with_metadata"
	KindBatch              = "batch"
	KindBatchItem          = "batch_item"
)

// Recorder 结算 Worker 的指标；由进程创建后注入各组件，nil Recorder 的方法均为空操作
type Recorder struct {
	registry *prometheus.Registry

	settlementsProcessed *prometheus.CounterVec
	itemsProcessed       *prometheus.CounterVec
	requestsReceived     *prometheus.CounterVec
	jobsDropped          *prometheus.CounterVec
	archiveUploads       *prometheus.CounterVec
	tokensPaid           *prometheus.HistogramVec
	settlementDuration   *prometheus.HistogramVec
	batchSize            *prometheus.GaugeVec
}

// NewRecorder 创建 Recorder 并注册到独立的 Registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		settlementsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_processed_total",
			Help:      "结算调用次数（按结果、网络、种类）",
		}, []string{"status", "network", "kind"}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_items_processed_total",
			Help:      "批量结算成功覆盖的条目数",
		}, []string{"network", "kind"}),
		requestsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_received_total",
			Help:      "入队的结算请求数",
		}, []string{"type", "network"}),
		jobsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dropped_total",
			Help:      "被丢弃的 Job 数",
		}, []string{"reason"}),
		archiveUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "批次数据归档上传次数",
		}, []string{"status"}),
		tokensPaid: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tokens_paid",
			Help:      "单笔支付的 maxAmountRequired",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
		}, []string{"asset", "network"}),
		settlementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "结算调用耗时（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network", "kind"}),
		batchSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "最近一次批量结算的条目数",
		}, []string{"network"}),
	}
	r.registry.MustRegister(
		r.settlementsProcessed, r.itemsProcessed, r.requestsReceived, r.jobsDropped,
		r.archiveUploads, r.tokensPaid, r.settlementDuration, r.batchSize,
	)
	return r
}

// Registry 返回底层 Registry（供 /metrics 暴露与测试断言）
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// SettlementProcessed 记录一次结算调用结果与耗时
func (r *Recorder) SettlementProcessed(network, kind string, success bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	r.settlementsProcessed.WithLabelValues(status, network, kind).Inc()
	r.settlementDuration.WithLabelValues(network, kind).Observe(elapsed.Seconds())
}

// BatchSettled 记录批量结算规模；成功时累加覆盖条目数
func (r *Recorder) BatchSettled(network string, size int, success bool) {
	if r == nil {
		return
	}
	r.batchSize.WithLabelValues(network).Set(float64(size))
	if success {
		r.itemsProcessed.WithLabelValues(network, KindBatchItem).Add(float64(size))
	}
}

// TokensPaid 记录单笔支付金额
func (r *Recorder) TokensPaid(asset, network string, amount float64) {
	if r == nil {
		return
	}
	r.tokensPaid.WithLabelValues(asset, network).Observe(amount)
}

// RequestReceived 记录入队请求
func (r *Recorder) RequestReceived(jobType, network string) {
	if r == nil {
		return
	}
	r.requestsReceived.WithLabelValues(jobType, network).Inc()
}

// JobDropped 记录被丢弃的 Job
func (r *Recorder) JobDropped(reason string) {
	if r == nil {
		return
	}
	r.jobsDropped.WithLabelValues(reason).Inc()
}

// ArchiveUpload 记录归档上传结果
func (r *Recorder) ArchiveUpload(success bool) {
	if r == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	r.archiveUploads.WithLabelValues(status).Inc()
}

// WritePrometheus 将 Prometheus 文本格式写入 w
func (r *Recorder) WritePrometheus(w io.Writer) error {
	mfs, err := r.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
