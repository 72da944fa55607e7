// Copyright 2026 ImageFlow Authors

/*
Package handlers 提供 imageflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了批量生成、任务状态查询（含 websocket 推送）、
生成记录列表、媒体文件下载与健康检查端点。
所有 Handler 均遵循标准 net/http 接口，由 cmd/imageflow 注册到 ServeMux。

# 核心类型

  - GenerateHandler：GET /generate?prompts=a,b,c，返回 prompt → 轮询 URL
  - ResultHandler：GET /result/{id} 与 /result/{id}/watch（websocket）
  - ImagesHandler：GET /api/v1/images 列表与 /media/ 下的图片文件
  - HealthHandler：服务健康检查（/health, /healthz, /ready, /version）
  - Response：/api/v1 下统一 JSON 响应结构
  - ErrorBody：生成与查询端点的扁平错误体 {"error": "..."}
  - ResponseWriter：包装 http.ResponseWriter，记录状态码与写出字节数

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteBareError / WriteJSON
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - BaseURL：优先使用配置的对外地址，否则按 scheme 与 host 推导
  - 可扩展健康检查：RegisterCheck 注册 PingCheck（数据库、任务后端）
*/
package handlers
