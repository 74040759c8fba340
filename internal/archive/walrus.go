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


package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"inference-facilitator/pkg/config"
)

// Walrus 通过 Walrus publisher 的 PUT /v1/blobs 存储 blob
type Walrus struct {
	client    *resty.Client
	publisher string
	epochs    int
}

// NewWalrus 创建 Walrus Uploader
func NewWalrus(cfg config.WalrusConfig) *Walrus {
	publisher := cfg.PublisherURL
	if publisher == "" {
		publisher = config.DefaultWalrusPublisher
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = config.DefaultWalrusEpochs
	}
	client := resty.New()
	client.SetTimeout(config.ParseDuration(cfg.Timeout, 30*time.Second))
	return &Walrus{client: client, publisher: publisher, epochs: epochs}
}

type walrusResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

// Upload 实现 Uploader
func (w *Walrus) Upload(ctx context.Context, data []byte) (string, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("epochs", strconv.Itoa(w.epochs)).
		SetBody(data).
		Put(w.publisher)
	if err != nil {
		return "", fmt.Errorf("walrus upload: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("walrus upload failed (%d): %s", resp.StatusCode(), resp.String())
	}
	return parseBlobID(resp.Body())
}

func parseBlobID(body []byte) (string, error) {
	var r walrusResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	switch {
	case r.NewlyCreated != nil && r.NewlyCreated.BlobObject.BlobID != "":
		return r.NewlyCreated.BlobObject.BlobID, nil
	case r.AlreadyCertified != nil && r.AlreadyCertified.BlobID != "":
		return r.AlreadyCertified.BlobID, nil
	default:
		return "", ErrUnexpectedResponse
	}
}
