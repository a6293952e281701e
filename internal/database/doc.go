// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接池管理，供检查点存储与
pgvector 向量索引共用。

# 概述

Open 按驱动名（postgres 或 sqlite）选择 GORM 方言，校验连接池配置后
建立连接并立即探活。PoolManager 统一管理连接生命周期，后台健康检查
定时 PingContext，并通过 StatsRecorder 把打开与空闲连接数上报到
Prometheus。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close()。
  - PoolConfig：最大空闲与打开连接数、生命周期、健康检查间隔。
  - StatsRecorder：连接数上报接口，由 metrics.Collector 实现。
*/
package database
