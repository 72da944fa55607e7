// Copyright 2026 ImageFlow Authors

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
图片生成服务、分发、异步任务与数据库五个维度。

# 核心类型

  - Collector：指标收集器，通过 promauto.With 注册到调用方
    提供的 Registerer（为 nil 时使用默认 Registry）。nil
    Collector 上的所有 Record 方法都是空操作。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 图片生成指标：按 provider/model/status 统计调用次数与耗时。
  - 分发指标：按 submitted/reused/shared/invalid/error 统计单个 prompt
    的分发结果，以及每次请求的 prompt 数与总耗时。
  - 任务指标：提交（accepted/rejected）、结束状态、执行耗时，
    以及 worker 池的 workers/active/queued Gauge。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
