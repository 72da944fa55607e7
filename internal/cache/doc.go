// Copyright 2026 ImageFlow Authors

/*
包 cache 封装 go-redis 客户端，为 Redis 任务状态后端提供
JSON 文档读写。

# 核心类型

  - Manager：持有 Redis 客户端，提供 SetJSON/GetJSON/TTL/Ping。
  - Config：地址、密码、连接池大小与后台检查间隔，
    由 ConfigFrom 从服务的 config.RedisConfig 生成。

# 主要能力

  - 连接校验：NewManager 创建时 Ping，失败立即返回错误。
  - 过期控制：SetJSON 的 ttl <= 0 表示键不过期，
    未完成的任务以此常驻，终态任务按保留时长过期。
  - 后台检查：定时 Ping，记录连续失败次数并在恢复时告知，
    Close 时退出。
  - 错误语义：ErrCacheMiss 表示键不存在或已过期，ErrClosed 表示已关闭。
*/
package cache
