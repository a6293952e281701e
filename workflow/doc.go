// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供检索增强对话流水线的状态机引擎与检查点存储。

# 概述

流水线是固定的线性状态机：

	recall_memory → recall_documents → reason → commit_memory → done

每个步骤在状态副本上运行，完成后由引擎校验字段归属并写入检查点，
因此失败的步骤不会把部分写入泄漏到后续步骤。

# 核心类型

  - State / Delta        — 流水线状态与单步变更
  - Registry / Graph     — 步骤注册表与编译后的图（Compile 校验缺失、环与不可达步骤）
  - Engine               — Invoke（单次）/ Stream（逐步更新）/ Resume（断点续跑）
  - Checkpoint           — 按 resumption key 组织的版本化快照（ParentID 形成链）
  - CheckpointStore      — Memory / Gorm（Postgres、SQLite）/ Redis 三种实现

# 检查点语义

  - 每个步骤成功后保存 running 快照，最后一步保存 done
  - 步骤失败时保存 failed 快照（失败前的状态），不会自动续跑
  - 默认尽力而为：存储故障只记录日志与指标，不中断调用
*/
package workflow
