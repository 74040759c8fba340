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

package merkle

import "github.com/ethereum/go-ethereum/common"

// DumpFormat 归档数据格式标识
const DumpFormat = "opengradient-batch-v1"

// Value 一条批次成员：原始 (inputHash, outputHash) 及其叶子下标
type Value struct {
	Value     [2]common.Hash `json:"value"`
	LeafIndex int            `json:"leafIndex"`
}

// Dump 批次成员数据，上传归档后供下游重建证明
type Dump struct {
	Format       string        `json:"format"`
	LeafEncoding []string      `json:"leafEncoding"`
	Root         common.Hash   `json:"root"`
	Leaves       []common.Hash `json:"leaves"`
	Values       []Value       `json:"values"`
}

// Build 按插入顺序为 pairs 计算叶子与根，返回可序列化的 Dump
func Build(pairs [][2]common.Hash) *Dump {
	d := &Dump{
		Format:       DumpFormat,
		LeafEncoding: []string{"bytes32", "bytes32"},
		Leaves:       make([]common.Hash, len(pairs)),
		Values:       make([]Value, len(pairs)),
	}
	for i, p := range pairs {
		d.Leaves[i] = Leaf(p[0], p[1])
		d.Values[i] = Value{Value: p, LeafIndex: i}
	}
	d.Root = Root(d.Leaves)
	return d
}

// Proof 返回第 i 个成员的包含证明
func (d *Dump) Proof(i int) ([]ProofStep, error) {
	return Proof(d.Leaves, i)
}
