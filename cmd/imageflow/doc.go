/*
Package main 提供 imageflow 服务端程序入口。

# 概述

cmd/imageflow 是异步文生图服务的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件与
IMAGEFLOW_* 环境变量加载、结构化日志（zap）、Prometheus 指标采集
以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server：主服务器，组装记录存储、任务队列、分发器与路由，管理 HTTP、Metrics 双端口
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（建表）、version、health
  - 路由：GET /generate、GET /result/{id}、GET /result/{id}/watch（websocket）、
    GET /api/v1/images、媒体文件下载，以及 /health、/ready、/version
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTelTracing、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key）
  - 优雅关闭：信号监听 → 关闭 HTTP → 排空任务队列 → 关闭状态后端与数据库 → 关闭 Metrics
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
