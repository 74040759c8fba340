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

package signature

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"inference-facilitator/pkg/secrets"
)

// KeyPath 网络结算私钥在 secret store 中的 key
func KeyPath(network string) string {
	return "settlement/" + network + "/private_key"
}

// Credential 某个网络的结算签名身份
type Credential struct {
	Network string
	Address common.Address
	key     *ecdsa.PrivateKey
}

// NewCredential 由 hex 私钥（可带 0x 前缀）构造 Credential
func NewCredential(network, hexKey string) (*Credential, error) {
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) >= 2 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key for network %s: %w", network, err)
	}
	return &Credential{
		Network: network,
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// Sign 对 data 做 EIP-191 personal_sign，返回 0x 开头的 65 字节签名
func (c *Credential) Sign(data []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), c.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Recover 从 EIP-191 签名恢复签名地址
func Recover(data []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(data), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Provider 按网络提供结算签名身份
type Provider interface {
	Signer(ctx context.Context, network string) (*Credential, error)
}

// SecretProvider 每次调用都从 secret store 读取私钥，密钥轮换无需重启
type SecretProvider struct {
	store secrets.Store
}

// NewSecretProvider 创建基于 secret store 的 Provider
func NewSecretProvider(store secrets.Store) *SecretProvider {
	return &SecretProvider{store: store}
}

// Signer 实现 Provider
func (p *SecretProvider) Signer(ctx context.Context, network string) (*Credential, error) {
	raw, err := p.store.Get(ctx, KeyPath(network))
	if err != nil {
		return nil, fmt.Errorf("load signer for network %s: %w", network, err)
	}
	return NewCredential(network, raw)
}
