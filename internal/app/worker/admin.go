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
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"inference-facilitator/pkg/metrics"
)

const metricsContentType = "text/plain; version=0.0.4; charset=utf-8"

// newAdminServer 运维端口：GET /metrics（Prometheus 文本格式）与 GET /healthz。
// 只读取指标 Registry，不触碰批量缓冲区。
func newAdminServer(addr, workerID string, rec *metrics.Recorder) *server.Hertz {
	h := server.Default(
		server.WithHostPorts(addr),
		server.WithExitWaitTime(time.Second),
	)
	h.GET("/metrics", func(c context.Context, ctx *app.RequestContext) {
		var buf bytes.Buffer
		if err := rec.WritePrometheus(&buf); err != nil {
			ctx.JSON(consts.StatusInternalServerError, map[string]string{
				"error": err.Error(),
			})
			return
		}
		ctx.Data(consts.StatusOK, metricsContentType, buf.Bytes())
	})
	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, map[string]interface{}{
			"status":    "ok",
			"worker_id": workerID,
			"timestamp": time.Now().Unix(),
		})
	})
	return h
}
