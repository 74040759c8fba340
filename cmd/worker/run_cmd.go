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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inference-facilitator/internal/app/worker"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动结算 Worker",
	Long:  "启动结算主循环，收到 SIGINT/SIGTERM 后退出。退出时缓冲区中未结算的批量条目不会 flush。",
	Args:  cobra.NoArgs,
	RunE:  handleRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func handleRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	app, err := worker.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("初始化应用失败: %w", err)
	}
	if err := app.Start(); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭应用失败: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "应用已关闭")
	return nil
}
