// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

// Package logging 根据 config.LogConfig 构建 zap 根 logger。
//
// 文件输出经 lumberjack 按大小滚动；启用脱敏时，消息与字符串字段中的
// sk- 密钥、Authorization Bearer 令牌和 api_key 参数被替换为 [REDACTED]。
package logging
