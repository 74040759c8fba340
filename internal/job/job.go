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

package job

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind 队列中 Job 的判别字段（JSON "type"）
type Kind string

const (
	KindPayment Kind = "payment" // 单笔支付结算
	KindPayload Kind = "payload" // 推理载荷结算
)

// SettlementTypeBatch 标记可批量聚合的载荷结算
const SettlementTypeBatch = "settle-batch"

// PaymentPayload x402 支付载荷；scheme 相关的具体内容保持原始 JSON 交给结算端
type PaymentPayload struct {
	X402Version int             `json:"x402Version" validate:"required"`
	Scheme      string          `json:"scheme" validate:"required"`
	Network     string          `json:"network" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
}

// PaymentRequirements 资源方声明的支付要求；Network 决定结算后端
type PaymentRequirements struct {
	Scheme            string          `json:"scheme" validate:"required"`
	Network           string          `json:"network" validate:"required"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource,omitempty"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	PayTo             string          `json:"payTo,omitempty"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds,omitempty"`
	Asset             json.RawMessage `json:"asset,omitempty"` // 地址字符串或 {"address": ...}
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// AssetTag 指标标签用的资产标识；无法识别时为 "unknown"
func (r *PaymentRequirements) AssetTag() string {
	if len(r.Asset) == 0 {
		return "unknown"
	}
	var s string
	if err := json.Unmarshal(r.Asset, &s); err == nil && s != "" {
		return s
	}
	var obj struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(r.Asset, &obj); err == nil && obj.Address != "" {
		return obj.Address
	}
	return "unknown"
}

// PaymentJob 立即结算的支付请求
type PaymentJob struct {
	ID           string               `json:"id" validate:"required"`
	Type         Kind                 `json:"type"`
	Timestamp    int64                `json:"timestamp"`
	Payload      *PaymentPayload      `json:"payload" validate:"required"`
	Requirements *PaymentRequirements `json:"requirements" validate:"required"`
}

// SettlePayloadJob 载荷结算请求；SettlementType 为 settle-batch 时进入批量缓冲区
type SettlePayloadJob struct {
	ID             string `json:"id" validate:"required"`
	Type           Kind   `json:"type"`
	Timestamp      int64  `json:"timestamp"`
	Network        string `json:"network" validate:"required"`
	InputHash      string `json:"inputHash" validate:"required,hash32"`
	OutputHash     string `json:"outputHash" validate:"required,hash32"`
	ModelType      string `json:"modelType,omitempty"`
	Msg            string `json:"msg"`
	SettlementType string `json:"settlement_type"`
}

// IsBatchable 是否参与批量聚合
func (p *SettlePayloadJob) IsBatchable() bool {
	return p.SettlementType == SettlementTypeBatch
}

// Job 队列 Job 的封闭联合：Kind 决定 Payment 与 Payload 中哪一个非 nil
type Job struct {
	Kind    Kind
	Payment *PaymentJob
	Payload *SettlePayloadJob
}

// ID 返回关联日志用的 Job 标识
func (j *Job) ID() string {
	switch j.Kind {
	case KindPayment:
		return j.Payment.ID
	case KindPayload:
		return j.Payload.ID
	}
	return ""
}

// Network 返回 Job 的结算网络
func (j *Job) Network() string {
	switch j.Kind {
	case KindPayment:
		return j.Payment.Requirements.Network
	case KindPayload:
		return j.Payload.Network
	}
	return ""
}

// NewID 生成短随机标识；仅用于日志关联，不保证全局唯一，不可用于去重
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewPaymentJob 构造待入队的支付 Job
func NewPaymentJob(payload *PaymentPayload, requirements *PaymentRequirements) *Job {
	return &Job{
		Kind: KindPayment,
		Payment: &PaymentJob{
			ID:           NewID(),
			Type:         KindPayment,
			Timestamp:    time.Now().UnixMilli(),
			Payload:      payload,
			Requirements: requirements,
		},
	}
}

// NewPayloadJob 构造待入队的载荷结算 Job
func NewPayloadJob(network, inputHash, outputHash, msg, settlementType, modelType string) *Job {
	return &Job{
		Kind: KindPayload,
		Payload: &SettlePayloadJob{
			ID:             NewID(),
			Type:           KindPayload,
			Timestamp:      time.Now().UnixMilli(),
			Network:        network,
			InputHash:      inputHash,
			OutputHash:     outputHash,
			ModelType:      modelType,
			Msg:            msg,
			SettlementType: settlementType,
		},
	}
}
