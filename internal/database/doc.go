// Copyright 2026 ImageFlow Authors

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，支持健康检查
与连接数指标上报。

# 概述

Open 按配置选择 sqlite（纯 Go 驱动）、postgres 或 mysql 方言，
并开启错误翻译，使唯一约束冲突统一表现为 gorm.ErrDuplicatedKey。
PoolManager 封装 database/sql 的连接池配置，后台健康检查定时探活，
并把连接数写入 metrics.Collector。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，PoolConfigFrom 由数据库配置推导，
    sqlite 固定为单连接。
  - PoolStats：连接池快照，Stats() 读取时同时写入连接数指标。
  - ErrPoolClosed：Close 之后 Ping 返回的错误。
*/
package database
