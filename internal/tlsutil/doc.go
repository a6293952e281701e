// Package tlsutil 提供集中式 TLS 配置，
// 为模型 API、向量库、记忆服务等 HTTP 客户端以及 Redis 连接提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
