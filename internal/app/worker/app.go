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


package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"inference-facilitator/internal/archive"
	"inference-facilitator/internal/batch"
	"inference-facilitator/internal/queue"
	"inference-facilitator/internal/settlement"
	"inference-facilitator/pkg/config"
	"inference-facilitator/pkg/log"
	"inference-facilitator/pkg/metrics"
	"inference-facilitator/pkg/secrets"
	"inference-facilitator/pkg/signature"
	"inference-facilitator/pkg/tracing"
	"inference-facilitator/pkg/utils"
)

// App 结算 Worker 应用：队列 -> Dispatcher -> 结算端点，可选运维端口与链路追踪
type App struct {
	config     *config.Config
	logger     *log.Logger
	metrics    *metrics.Recorder
	queue      *queue.Queue
	dispatcher *Dispatcher
	admin      *server.Hertz
	tracer     *sdktrace.TracerProvider
	cancel     context.CancelFunc
}

// NewApp 按配置组装 Worker
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	workerID := utils.CoalesceString(cfg.Worker.ID, DefaultWorkerID())
	rec := metrics.NewRecorder()

	q, err := queue.Open(context.Background(), cfg.Queue, rec)
	if err != nil {
		return nil, fmt.Errorf("初始化任务队列失败: %w", err)
	}

	store, err := secrets.NewStore(cfg.Secrets)
	if err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("初始化密钥存储失败: %w", err)
	}

	uploader, err := archive.New(cfg.Archive)
	if err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("初始化归档失败: %w", err)
	}

	buffer, err := batch.NewBuffer(batch.Config{
		Size:    cfg.Batch.Size,
		Timeout: cfg.Batch.BatchTimeout(),
	})
	if err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("初始化批量缓冲区失败: %w", err)
	}

	router := settlement.NewHTTPRouter(cfg.Settlement)
	backoff := Backoff{
		PollTimeout: config.ParseDuration(cfg.Worker.PollTimeout, 0),
		JobError:    config.ParseDuration(cfg.Worker.JobErrorBackoff, 0),
		Transport:   config.ParseDuration(cfg.Worker.TransportBackoff, 0),
	}
	dispatcher := NewDispatcher(workerID, q, router, signature.NewSecretProvider(store), buffer, backoff, rec, logger)
	dispatcher.SetUploader(uploader)

	a := &App{
		config:     cfg,
		logger:     logger,
		metrics:    rec,
		queue:      q,
		dispatcher: dispatcher,
	}

	if cfg.Monitoring.Tracing.Enable {
		endpoint := utils.CoalesceString(cfg.Monitoring.Tracing.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if endpoint != "" {
			tp, err := tracing.InitTracer(tracing.OTelConfig{
				ServiceName:    cfg.Monitoring.Tracing.ServiceName,
				ExportEndpoint: endpoint,
				Insecure:       cfg.Monitoring.Tracing.Insecure,
			})
			if err != nil {
				logger.Warn("链路追踪初始化失败", "error", err)
			} else {
				a.tracer = tp
				logger.Info("链路追踪已启用", "service_name", cfg.Monitoring.Tracing.ServiceName, "endpoint", endpoint)
			}
		}
	}

	if cfg.Monitoring.Prometheus.Enable {
		levelVar := &slog.LevelVar{}
		levelVar.Set(log.ParseLevel(cfg.Log.Level))
		hlog.SetLogger(hertzslog.NewLogger(
			hertzslog.WithOutput(os.Stdout),
			hertzslog.WithLevel(levelVar),
		))
		a.admin = newAdminServer(fmt.Sprintf(":%d", cfg.Monitoring.Prometheus.Port), workerID, rec)
	}

	logger.Info("Worker 配置完成",
		"worker_id", workerID,
		"queue", cfg.Queue.Type,
		"batch_size", cfg.Batch.Size,
		"batch_timeout_ms", cfg.Batch.TimeoutMs,
		"networks", router.Networks(),
		"archive", cfg.Archive.Type,
	)
	return a, nil
}

// Start 启动 Dispatcher 与运维端口
func (a *App) Start() error {
	a.logger.Info("启动 worker 应用")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.dispatcher.Start(ctx)

	if a.admin != nil {
		go func() {
			if err := a.admin.Run(); err != nil {
				a.logger.Error("运维端口退出", "error", err)
			}
		}()
		a.logger.Info("运维端口已启动", "port", a.config.Monitoring.Prometheus.Port)
	}

	a.logger.Info("worker 应用启动成功")
	return nil
}

// Shutdown 停止主循环（不 flush 缓冲区）并释放资源
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 worker 应用")

	if a.cancel != nil {
		a.cancel()
	}
	a.dispatcher.Stop()

	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			a.logger.Error("关闭运维端口失败", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("关闭链路追踪失败", "error", err)
		}
	}
	if err := a.queue.Close(); err != nil {
		a.logger.Error("关闭任务队列失败", "error", err)
	}

	a.logger.Info("worker 应用已关闭")
	return a.logger.Close()
}
