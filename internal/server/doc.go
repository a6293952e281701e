// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 server 管理 HTTP 服务器生命周期：非阻塞启动、优雅关闭与异步错误传播。

Manager 封装 net/http.Server。Run 阻塞到调用方的 ctx 取消（cmd 中由
signal.NotifyContext 监听 SIGINT/SIGTERM）或服务异常退出，随后在
ShutdownTimeout 内排空请求。ConfigFrom 把 config.ServerConfig 转换为
监听地址与超时设置。
*/
package server
