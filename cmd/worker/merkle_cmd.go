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


package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"inference-facilitator/internal/job"
	"inference-facilitator/internal/merkle"
)

var proofIndex int

var merkleCmd = &cobra.Command{
	Use:   "merkle",
	Short: "离线计算批次 Merkle 根与包含证明",
}

var merkleRootCmd = &cobra.Command{
	Use:   "root <inputHash:outputHash>...",
	Short: "按给定顺序计算 Merkle 根",
	RunE:  handleMerkleRoot,
}

var merkleProofCmd = &cobra.Command{
	Use:   "proof <inputHash:outputHash>...",
	Short: "输出 --index 指定成员的包含证明",
	Args:  cobra.MinimumNArgs(1),
	RunE:  handleMerkleProof,
}

func init() {
	merkleProofCmd.Flags().IntVar(&proofIndex, "index", 0, "成员下标（从 0 开始）")
	merkleCmd.AddCommand(merkleRootCmd, merkleProofCmd)
	rootCmd.AddCommand(merkleCmd)
}

func parsePairs(args []string) ([][2]common.Hash, error) {
	pairs := make([][2]common.Hash, len(args))
	for i, arg := range args {
		in, out, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("参数 %d 应为 inputHash:outputHash: %q", i, arg)
		}
		inHash, err := job.ParseHash(in)
		if err != nil {
			return nil, fmt.Errorf("参数 %d inputHash: %w", i, err)
		}
		outHash, err := job.ParseHash(out)
		if err != nil {
			return nil, fmt.Errorf("参数 %d outputHash: %w", i, err)
		}
		pairs[i] = [2]common.Hash{inHash, outHash}
	}
	return pairs, nil
}

func handleMerkleRoot(cmd *cobra.Command, args []string) error {
	pairs, err := parsePairs(args)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), merkle.Build(pairs).Root.Hex())
	return nil
}

func handleMerkleProof(cmd *cobra.Command, args []string) error {
	pairs, err := parsePairs(args)
	if err != nil {
		return err
	}
	tree := merkle.Build(pairs)
	proof, err := tree.Proof(proofIndex)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"root":  tree.Root,
		"leaf":  tree.Leaves[proofIndex],
		"proof": proof,
	})
}
