// Copyright 2026 ImageFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 imageflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext 自动注册 Cleanup 防止泄漏
  - 图片样本: PNGBytes / PNGBase64 生成可被解码的纯色 PNG

# 子包

  - testutil/mocks: MockProvider（图片生成提供者），支持固定响应、
    空结果、按 prompt 注入错误、延迟与调用记录

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewSuccessProvider(testutil.PNGBase64(4, 4))
	resp, err := provider.Generate(ctx, &image.GenerateRequest{Prompt: "a cat"})
*/
package testutil
