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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"inference-facilitator/internal/job"
	"inference-facilitator/pkg/config"
	"inference-facilitator/pkg/errors"
	"inference-facilitator/pkg/signature"
)

// 签名请求头
const (
	HeaderSignature = "X-Settlement-Signature"
	HeaderSigner    = "X-Settlement-Signer"
)

const defaultTimeout = 30 * time.Second

// HTTPExecutor 通过 facilitator HTTP 端点结算
type HTTPExecutor struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHTTPExecutor 创建某个网络的 HTTP 结算执行器。
// 结算请求不做自动重试，失败由调用方记录后丢弃。
func NewHTTPExecutor(cfg config.NetworkConfig) *HTTPExecutor {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.Endpoint, "/"))
	client.SetTimeout(config.ParseDuration(cfg.Timeout, defaultTimeout))
	client.SetRetryCount(0)
	client.SetHeader("Content-Type", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.QPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	return &HTTPExecutor{client: client, limiter: limiter}
}

// paymentBody /settle 请求体
type paymentBody struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *job.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *job.PaymentRequirements `json:"paymentRequirements"`
}

// payloadBody /settle-payload 与 /settle-batch 请求体
type payloadBody struct {
	Network        string `json:"network"`
	InputHash      string `json:"inputHash"`
	OutputHash     string `json:"outputHash"`
	Msg            string `json:"msg"`
	SettlementType string `json:"settlement_type"`
	ModelType      string `json:"modelType,omitempty"`
	Root           string `json:"root,omitempty"`
	Size           int    `json:"size,omitempty"`
}

func encodeRequest(req Request) (path string, body []byte, err error) {
	switch req.Kind {
	case RequestPayment:
		if req.Payment == nil {
			return "", nil, fmt.Errorf("payment request without body")
		}
		body, err = json.Marshal(paymentBody{
			X402Version:         req.Payment.Payload.X402Version,
			PaymentPayload:      req.Payment.Payload,
			PaymentRequirements: req.Payment.Requirements,
		})
		return "/settle", body, err
	case RequestPayload:
		if req.Payload == nil {
			return "", nil, fmt.Errorf("payload request without body")
		}
		p := req.Payload
		body, err = json.Marshal(payloadBody{
			Network:        p.Network,
			InputHash:      job.NormalizeHex(p.InputHash),
			OutputHash:     job.NormalizeHex(p.OutputHash),
			Msg:            p.Msg,
			SettlementType: p.SettlementType,
			ModelType:      p.ModelType,
		})
		return "/settle-payload", body, err
	case RequestBatch:
		if req.Batch == nil {
			return "", nil, fmt.Errorf("batch request without body")
		}
		body, err = json.Marshal(payloadBody{
			Network:        req.Network,
			InputHash:      "0x",
			OutputHash:     "0x",
			SettlementType: job.SettlementTypeBatch,
			Root:           req.Batch.Root.Hex(),
			Size:           req.Batch.Size,
		})
		return "/settle-batch", body, err
	default:
		return "", nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

// Settle 实现 Executor
func (e *HTTPExecutor) Settle(ctx context.Context, cred *signature.Credential, req Request) (*Result, error) {
	path, body, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	r := e.client.R().SetContext(ctx).SetBody(body)
	if cred != nil {
		sig, err := cred.Sign(body)
		if err != nil {
			return nil, err
		}
		r.SetHeader(HeaderSignature, sig).SetHeader(HeaderSigner, cred.Address.Hex())
	}

	resp, err := r.Post(path)
	if err != nil {
		return nil, errors.Mark(fmt.Errorf("settle %s: %w", req.Network, err), errors.ErrUnavailable)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("settle %s: status %d: %s", req.Network, resp.StatusCode(), truncate(resp.String(), 256))
	}

	var result Result
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("settle %s: decode response: %w", req.Network, err)
	}
	if !result.Success {
		return &result, fmt.Errorf("%w: %s", ErrRejected, result.ErrorReason)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
