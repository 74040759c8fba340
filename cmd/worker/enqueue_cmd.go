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
	"os"

	"github.com/spf13/cobra"

	"inference-facilitator/internal/job"
	"inference-facilitator/internal/queue"
)

var enqueueFlags struct {
	network        string
	inputHash      string
	outputHash     string
	msg            string
	modelType      string
	settlementType string
	batch          bool

	payloadFile      string
	requirementsFile string
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "向任务队列写入结算任务",
}

var enqueuePayloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "入队一条推理载荷结算",
	Args:  cobra.NoArgs,
	RunE:  handleEnqueuePayload,
}

var enqueuePaymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "入队一笔 x402 支付结算",
	Args:  cobra.NoArgs,
	RunE:  handleEnqueuePayment,
}

func init() {
	f := enqueuePayloadCmd.Flags()
	f.StringVar(&enqueueFlags.network, "network", "", "结算网络")
	f.StringVar(&enqueueFlags.inputHash, "input-hash", "", "输入哈希（32 字节 hex，0x 可省略）")
	f.StringVar(&enqueueFlags.outputHash, "output-hash", "", "输出哈希（32 字节 hex，0x 可省略）")
	f.StringVar(&enqueueFlags.msg, "msg", "", "附带消息")
	f.StringVar(&enqueueFlags.modelType, "model-type", "", "模型类型")
	f.StringVar(&enqueueFlags.settlementType, "settlement-type", "", "结算类型")
	f.BoolVar(&enqueueFlags.batch, "batch", false, "等价于 --settlement-type settle-batch")
	_ = enqueuePayloadCmd.MarkFlagRequired("network")
	_ = enqueuePayloadCmd.MarkFlagRequired("input-hash")
	_ = enqueuePayloadCmd.MarkFlagRequired("output-hash")

	pf := enqueuePaymentCmd.Flags()
	pf.StringVar(&enqueueFlags.payloadFile, "payload", "", "PaymentPayload JSON 文件")
	pf.StringVar(&enqueueFlags.requirementsFile, "requirements", "", "PaymentRequirements JSON 文件")
	_ = enqueuePaymentCmd.MarkFlagRequired("payload")
	_ = enqueuePaymentCmd.MarkFlagRequired("requirements")

	enqueueCmd.AddCommand(enqueuePayloadCmd, enqueuePaymentCmd)
	rootCmd.AddCommand(enqueueCmd)
}

func openQueue(cmd *cobra.Command) (*queue.Queue, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return queue.Open(cmd.Context(), cfg.Queue, nil)
}

func handleEnqueuePayload(cmd *cobra.Command, args []string) error {
	settlementType := enqueueFlags.settlementType
	if enqueueFlags.batch {
		settlementType = job.SettlementTypeBatch
	}
	for _, h := range []string{enqueueFlags.inputHash, enqueueFlags.outputHash} {
		if _, err := job.ParseHash(h); err != nil {
			return fmt.Errorf("%w: %v", job.ErrInvalidJob, err)
		}
	}

	q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer q.Close()

	id, err := q.EnqueuePayload(cmd.Context(), enqueueFlags.network, enqueueFlags.inputHash, enqueueFlags.outputHash,
		enqueueFlags.msg, settlementType, enqueueFlags.modelType)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func handleEnqueuePayment(cmd *cobra.Command, args []string) error {
	var payload job.PaymentPayload
	if err := readJSONFile(enqueueFlags.payloadFile, &payload); err != nil {
		return err
	}
	var requirements job.PaymentRequirements
	if err := readJSONFile(enqueueFlags.requirementsFile, &requirements); err != nil {
		return err
	}

	q, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer q.Close()

	id, err := q.EnqueuePayment(cmd.Context(), &payload, &requirements)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", path, err)
	}
	return nil
}
