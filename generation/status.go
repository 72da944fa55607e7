package generation

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/BaSui01/imageflow/store"
	"github.com/BaSui01/imageflow/task"
	"github.com/BaSui01/imageflow/types"
)

const (
	// StatusCompleted 任务成功且有图片.
	StatusCompleted = "Completed"

	// StatusFailed 任务运行结束但没有图片.
	StatusFailed = "Failed"

	// NoImageURLMessage 是 StatusFailed 的错误信息.
	NoImageURLMessage = "No image URL returned"
)

// StatusKind 区分 JobStatus 的三种形态.
type StatusKind int

const (
	// KindRaw 原样透传任务状态与结果.
	KindRaw StatusKind = iota
	// KindCompleted 对应 {"status":"Completed","image_url":...}.
	KindCompleted
	// KindNoResult 对应 {"status":"Failed","error":...}.
	KindNoResult
)

// JobStatus 是对外的任务状态.
type JobStatus struct {
	Kind     StatusKind
	Status   string
	ImageURL string
	Error    string
	Result   *string
}

// Terminal 返回状态是否不会再变化.
func (s JobStatus) Terminal() bool {
	switch s.Kind {
	case KindCompleted, KindNoResult:
		return true
	default:
		return task.State(s.Status).IsTerminal()
	}
}

// MarshalJSON 按 Kind 输出对应的字段集合.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindCompleted:
		return json.Marshal(struct {
			Status   string `json:"status"`
			ImageURL string `json:"image_url"`
		}{s.Status, s.ImageURL})
	case KindNoResult:
		return json.Marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{s.Status, s.Error})
	default:
		return json.Marshal(struct {
			Status string  `json:"status"`
			Result *string `json:"result"`
		}{s.Status, s.Result})
	}
}

// JobLookup 查询任务状态.
type JobLookup interface {
	Lookup(ctx context.Context, id string) (*task.Job, error)
}

// RecordLookup 按任务 ID 查找生成记录.
type RecordLookup interface {
	FindByJobID(ctx context.Context, jobID string) (*store.GenerationRecord, error)
}

// MediaURLs 把记录中的图片引用转换为媒体 URL.
type MediaURLs interface {
	URL(ref string) string
}

// StatusReporter 把任务状态翻译成对外状态.
type StatusReporter struct {
	jobs    JobLookup
	records RecordLookup
	urls    MediaURLs
}

// NewStatusReporter 创建 StatusReporter. 任务状态过期或进程重启后,
// 通过 records 找回已完成的生成; records 为 nil 时不回查.
func NewStatusReporter(jobs JobLookup, records RecordLookup, urls MediaURLs) *StatusReporter {
	if urls == nil {
		records = nil
	}
	return &StatusReporter{jobs: jobs, records: records, urls: urls}
}

// Status 查询 jobID 的状态. 图片 URL 为 baseURL 与任务结果直接拼接.
// 队列与记录中都没有的任务视为 pending.
func (r *StatusReporter) Status(ctx context.Context, jobID, baseURL string) (JobStatus, error) {
	job, err := r.jobs.Lookup(ctx, jobID)
	if errors.Is(err, task.ErrJobNotFound) {
		return r.fromRecord(ctx, jobID, baseURL)
	}
	if err != nil {
		return JobStatus{}, types.NewError(types.ErrInternalError, "failed to look up job").WithCause(err)
	}

	return Translate(job, baseURL), nil
}

func (r *StatusReporter) fromRecord(ctx context.Context, jobID, baseURL string) (JobStatus, error) {
	pending := JobStatus{Kind: KindRaw, Status: string(task.StatePending)}
	if r.records == nil {
		return pending, nil
	}

	rec, err := r.records.FindByJobID(ctx, jobID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return pending, nil
	case err != nil:
		return JobStatus{}, types.NewError(types.ErrInternalError, "failed to look up generation record").WithCause(err)
	case rec.Image == "":
		return JobStatus{Kind: KindNoResult, Status: StatusFailed, Error: NoImageURLMessage}, nil
	}
	return JobStatus{Kind: KindCompleted, Status: StatusCompleted, ImageURL: baseURL + r.urls.URL(rec.Image)}, nil
}

// Translate 把任务状态映射为 JobStatus.
func Translate(job *task.Job, baseURL string) JobStatus {
	if job.State == task.StateSucceeded {
		if job.Result != "" {
			return JobStatus{Kind: KindCompleted, Status: StatusCompleted, ImageURL: baseURL + job.Result}
		}
		return JobStatus{Kind: KindNoResult, Status: StatusFailed, Error: NoImageURLMessage}
	}

	var result *string
	switch {
	case job.State == task.StateFailed && job.Error != "":
		msg := job.Error
		result = &msg
	case job.Result != "":
		res := job.Result
		result = &res
	}
	return JobStatus{Kind: KindRaw, Status: string(job.State), Result: result}
}
