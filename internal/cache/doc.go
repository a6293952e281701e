// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 cache 管理 Redis 连接，供 redis 检查点驱动与 redis 记忆驱动共用
同一个 go-redis 客户端。

Options 把 config.RedisConfig 转换为 go-redis 选项（URL 优先于 Addr），
NewManager 建立连接并探活，可选的后台健康检查在 Close 后退出。
*/
package cache
