/*
Package generation 实现 prompt 分发、异步生成与状态翻译.

# 组件

  - Runner: 调用图片服务, 解码图片, 写入 blob 存储和生成记录.
    作为 "generate_image" 任务注册到 task.Queue, 失败时以空结果结束.
  - Dispatcher: 已有带 job_id 的记录时直接复用, 否则提交新任务,
    返回 {baseURL}/result/{jobID}.
  - BatchCoordinator: 解析逗号分隔的 prompt 列表, 以固定宽度并发分发,
    单个失败只影响自身条目.
  - StatusReporter: 把任务状态翻译为 Completed / Failed / 原始状态.

# 数据流

	BatchCoordinator -> Dispatcher -> store.Find | task.Queue.Submit
	task worker -> Runner -> image.Provider -> blob.Storage -> store.Upsert
	StatusReporter -> task.Queue.Lookup
*/
package generation
