// Package store persists generated image records keyed by prompt.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the lookup key.
	ErrNotFound = errors.New("generation record not found")

	// ErrDuplicateJobID is returned when a job id is already bound to another prompt.
	ErrDuplicateJobID = errors.New("job id already bound to another prompt")
)

// GenerationRecord is one generated image. At most one record exists per prompt,
// and a non-nil JobID is unique across records.
type GenerationRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Prompt    string    `gorm:"size:255;not null;uniqueIndex:idx_generated_images_prompt" json:"prompt"`
	Image     string    `gorm:"size:512" json:"image"`
	JobID     *string   `gorm:"size:64;uniqueIndex:idx_generated_images_job_id" json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (GenerationRecord) TableName() string { return "generated_images" }

// HasJob reports whether the record carries a job id.
func (r *GenerationRecord) HasJob() bool {
	return r != nil && r.JobID != nil && *r.JobID != ""
}

// JobRef returns the job id or an empty string.
func (r *GenerationRecord) JobRef() string {
	if !r.HasJob() {
		return ""
	}
	return *r.JobID
}

// Store is the record store consumed by the dispatcher and job runner.
type Store interface {
	// Find returns the record for an exact prompt match, or ErrNotFound.
	Find(ctx context.Context, prompt string) (*GenerationRecord, error)

	// FindByJobID returns the record bound to jobID, or ErrNotFound.
	FindByJobID(ctx context.Context, jobID string) (*GenerationRecord, error)

	// Upsert creates the record for prompt or overwrites its image and job id.
	// Concurrent upserts for the same prompt never produce two records.
	Upsert(ctx context.Context, prompt, image, jobID string) (*GenerationRecord, error)

	// List returns up to limit records, most recently updated first.
	List(ctx context.Context, limit int) ([]GenerationRecord, error)

	// Ping checks the underlying connection.
	Ping(ctx context.Context) error
}

func jobIDPtr(jobID string) *string {
	if jobID == "" {
		return nil
	}
	return &jobID
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
