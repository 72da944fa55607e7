// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 imageflow 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。目前只承载统一的
结构化错误 Error 与错误码 ErrorCode，供 image、generation、api 等
上层模块在边界处携带错误分类与 HTTP 状态。

# 错误码

  - INVALID_REQUEST：输入校验失败（空 prompt 等），映射 400
  - UPSTREAM_ERROR：调用图片生成服务的网络或 HTTP 失败
  - SUBSTRATE_ERROR：任务提交到异步执行层失败
  - NO_RESULT：任务完成但没有产出图片
  - INVALID_IMAGE：provider 返回的数据不是合法图片
  - NOT_FOUND / INTERNAL_ERROR
*/
package types
