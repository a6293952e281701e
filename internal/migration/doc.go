// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
包 migration 管理检查点表 pipeline_checkpoints 的 Postgres Schema，
基于 golang-migrate 与 embed.FS 内嵌的 SQL 文件实现。

# 概述

只有 postgres 检查点驱动使用版本化迁移；sqlite 驱动在启动时由
GORM AutoMigrate 建表，redis 与 memory 驱动无需建表。

# 核心类型

  - Migrator：Up/Down/Steps/Goto/Force/Version/Status/Info/Close。
  - PostgresMigrator：封装 golang-migrate 实例的默认实现。
  - CLI：把子命令（up、down、steps N、goto V、force V、version、
    status、info）映射到 Migrator，并格式化终端输出。
  - NewMigratorFromConfig / NewMigratorFromURL：从检查点 DSN 创建迁移器。
*/
package migration
