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
	"github.com/spf13/cobra"

	"inference-facilitator/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "x402 结算 Worker",
	Long: `从任务队列拉取支付与推理载荷结算任务：单笔任务立即结算，
settle-batch 任务按条数或时间聚合，按网络分组后提交 Merkle 根。`,
	SilenceUsage: true,
	Example: `  # 启动 Worker
  worker run --config configs/worker.yaml

  # 入队一条批量载荷结算
  worker enqueue payload --network og-evm --input-hash 0x.. --output-hash 0x.. --batch

  # 计算 Merkle 根
  worker merkle root 0x<in>:0x<out> 0x<in>:0x<out>`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时仅使用默认值与环境变量）")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath)
}
