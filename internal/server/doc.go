// Copyright 2026 ImageFlow Authors

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

本包通过 Manager 封装 net/http.Server，统一管理监听、服务、
关闭与错误传播流程。imageflow 用它运行 API 服务器与 metrics 服务器。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown/ListenAddr 等方法。
  - Config：单个端口的监听参数，ConfigFrom 由 config.ServerConfig
    推导（空闲超时为两倍读超时，请求头上限 1 MB）。

# 主要能力

  - 非阻塞启动：Start 先绑定端口再在后台 goroutine 中运行服务，
    端口占用在 Start 返回时即可发现。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放。
  - 信号监听：WaitForShutdown 基于 signal.NotifyContext 等待
    SIGINT/SIGTERM、ctx 结束或任一服务器异常退出。
*/
package server
