// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

// Package config 提供 ragflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 部署环境变量 → RAGFLOW_ 前缀变量
// 的顺序合并。检查点 DSN 未显式配置时由 ResolveCheckpointDSN 按部署变量推导，
// 日志与健康检查输出通过 RedactDSN 隐去密码。
package config
