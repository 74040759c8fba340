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

// Package merkle 构建批量结算的 Merkle 承诺：叶子为 keccak256(inputHash‖outputHash)，
// 父节点为 keccak256(left‖right)，奇数层末尾节点原样上移（不复制、不重新哈希）。
package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash 空批次的根（32 字节全零）
var ZeroHash = common.Hash{}

// ErrIndexOutOfRange 证明请求的叶子下标越界
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Leaf 由 (inputHash, outputHash) 派生叶子；参数顺序参与哈希
func Leaf(inputHash, outputHash common.Hash) common.Hash {
	return hashPair(inputHash, outputHash)
}

// Root 计算有序叶子序列的根；空序列返回 ZeroHash，单叶子返回其本身
func Root(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := leaves
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, hashPair(level[i], level[i+1]))
		} else {
			next = append(next, level[i])
		}
	}
	return next
}

func hashPair(a, b common.Hash) common.Hash {
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}
