// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
流水线、文档导入与数据库连接四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。指标可注册到
默认 Registry，也可通过 NewCollectorWithRegistry 注册到独立 Registry。
Collector 实现 workflow.MetricsRecorder，由流水线引擎直接调用。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 流水线指标：step_duration_seconds{step,status}、
    pipeline_runs_total{mode,status}、checkpoint_failures_total{step}。
  - 导入指标：写入向量索引的分块数与导入耗时。
  - 数据库指标：打开/空闲连接数 Gauge。
*/
package metrics
