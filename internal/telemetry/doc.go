// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 ragflow 的 HTTP 中间件与流水线引擎提供 TracerProvider 和 MeterProvider。
// 当遥测功能禁用时，使用全局 noop 实现，不连接任何外部服务。
package telemetry
