/*
Package image 提供文生图提供者的统一接口与实现.

# 提供者

  - StabilityProvider: Stability AI v1 text-to-image 接口
  - OpenAIProvider: OpenAI images/generations 接口 (b64_json)

两者均只做一次请求/响应转换, 固定输出分辨率, 不重试. 网络或 HTTP
层失败以 *types.Error 返回, 错误码为 UPSTREAM_ERROR 或 UPSTREAM_TIMEOUT,
消息中包含服务商返回的 message.

# 使用

	p, err := image.NewProvider(cfg.Provider)
	resp, err := p.Generate(ctx, &image.GenerateRequest{Prompt: "a cat"})
	first, _ := resp.First()
	decoded, err := image.Decode(first.B64JSON)
*/
package image
