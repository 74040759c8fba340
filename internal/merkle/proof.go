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

// ProofStep 证明中的一个兄弟节点；Left 为 true 表示兄弟在左侧
type ProofStep struct {
	Sibling common.Hash `json:"sibling"`
	Left    bool        `json:"left"`
}

// Proof 生成 leaves[index] 的包含证明；节点被原样上移的层不产生步骤
func Proof(leaves []common.Hash, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, ErrIndexOutOfRange
	}
	var steps []ProofStep
	level := leaves
	for len(level) > 1 {
		sib := index ^ 1
		if sib < len(level) {
			steps = append(steps, ProofStep{Sibling: level[sib], Left: sib < index})
		}
		level = nextLevel(level)
		index /= 2
	}
	return steps, nil
}

// Verify 校验 leaf 经 proof 是否还原出 root
func Verify(leaf common.Hash, proof []ProofStep, root common.Hash) bool {
	h := leaf
	for _, s := range proof {
		if s.Left {
			h = hashPair(s.Sibling, h)
		} else {
			h = hashPair(h, s.Sibling)
		}
	}
	return h == root
}
