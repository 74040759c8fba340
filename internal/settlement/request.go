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
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"inference-facilitator/internal/job"
	"inference-facilitator/pkg/signature"
)

var (
	// ErrUnknownNetwork 没有为该网络配置结算端点
	ErrUnknownNetwork = errors.New("unknown settlement network")
	// ErrRejected 结算端返回 success=false
	ErrRejected = errors.New("settlement rejected")
)

// RequestKind 结算请求种类
type RequestKind string

const (
	RequestPayment RequestKind = "payment"
	RequestPayload RequestKind = "payload"
	RequestBatch   RequestKind = "batch"
)

// Batch 批量结算承诺
type Batch struct {
	Root common.Hash
	Size int
}

// Request 结算请求的封闭联合；Kind 决定 Payment / Payload / Batch 中哪一个非 nil
type Request struct {
	Kind    RequestKind
	Network string
	Payment *job.PaymentJob
	Payload *job.SettlePayloadJob
	Batch   *Batch
}

// PaymentRequest 单笔支付结算
func PaymentRequest(p *job.PaymentJob) Request {
	return Request{Kind: RequestPayment, Network: p.Requirements.Network, Payment: p}
}

// PayloadRequest 单条载荷结算
func PayloadRequest(p *job.SettlePayloadJob) Request {
	return Request{Kind: RequestPayload, Network: p.Network, Payload: p}
}

// BatchRequest 一个网络分区的 Merkle 根结算
func BatchRequest(network string, root common.Hash, size int) Request {
	return Request{Kind: RequestBatch, Network: network, Batch: &Batch{Root: root, Size: size}}
}

// Result 结算结果
type Result struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Executor 执行一次结算；cred 为该网络的签名身份
type Executor interface {
	Settle(ctx context.Context, cred *signature.Credential, req Request) (*Result, error)
}
