package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on a relational database via GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "result_store")),
	}
}

// AutoMigrate creates or updates the generated_images table.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&GenerationRecord{}); err != nil {
		return fmt.Errorf("failed to migrate generated_images: %w", err)
	}
	return nil
}

// Find returns the record for prompt.
func (s *GormStore) Find(ctx context.Context, prompt string) (*GenerationRecord, error) {
	return s.first(ctx, "prompt = ?", prompt)
}

// FindByJobID returns the record bound to jobID.
func (s *GormStore) FindByJobID(ctx context.Context, jobID string) (*GenerationRecord, error) {
	return s.first(ctx, "job_id = ?", jobID)
}

func (s *GormStore) first(ctx context.Context, query string, arg any) (*GenerationRecord, error) {
	var rec GenerationRecord
	err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query generation record: %w", err)
	}
	return &rec, nil
}

// Upsert inserts the record or, on a prompt conflict, overwrites image and job_id
// in the same statement. The unique index on prompt serializes concurrent writers.
func (s *GormStore) Upsert(ctx context.Context, prompt, image, jobID string) (*GenerationRecord, error) {
	now := time.Now()
	rec := GenerationRecord{
		Prompt:    prompt,
		Image:     image,
		JobID:     jobIDPtr(jobID),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "prompt"}},
		DoUpdates: clause.AssignmentColumns([]string{"image", "job_id", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJobID, jobID)
		}
		return nil, fmt.Errorf("failed to upsert generation record: %w", err)
	}

	stored, err := s.Find(ctx, prompt)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("generation record saved",
		zap.String("prompt", prompt),
		zap.String("image", image),
		zap.String("job_id", jobID))
	return stored, nil
}

// List returns records ordered by updated_at descending.
func (s *GormStore) List(ctx context.Context, limit int) ([]GenerationRecord, error) {
	var recs []GenerationRecord
	q := s.db.WithContext(ctx).Order("updated_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}
	return recs, nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
