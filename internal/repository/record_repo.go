package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schema-relay/internal/domain"
)

type RecordRepository interface {
	Create(ctx context.Context, r *domain.Record) error
	GetByID(ctx context.Context, id int64) (*domain.Record, error)
	// ListBySchema returns records ordered by id ascending. The id is a
	// monotonic insert-order key, so positions already returned never shift
	// under concurrent inserts.
	ListBySchema(ctx context.Context, schemaName string, limit, offset int) ([]domain.Record, int64, error)
	// MarkForwarding advances a PERSISTED record to FORWARDING. Records that
	// already moved on are left untouched, so a worker finishing the forward
	// before the ingest path runs this cannot be dragged out of a terminal
	// state.
	MarkForwarding(ctx context.Context, id int64) error
	// LockForForwarding claims a record for delivery. Returns nil for
	// records already in a terminal state so queue redeliveries are no-ops.
	LockForForwarding(ctx context.Context, id int64) (*domain.Record, error)
	// CompleteForward moves a record to a terminal forward state, counting
	// the attempt that produced it.
	CompleteForward(ctx context.Context, id int64, status domain.Status, lastError *string) error
	// ScheduleRetry counts a failed attempt and parks the record until
	// nextRetryAt. The record stays in FORWARDING.
	ScheduleRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error
	ClearNextRetryAt(ctx context.Context, id int64) error
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Record, error)
	// GetStalled returns non-terminal records whose delivery was lost: rows
	// stuck in FORWARDING with no pending retry, or PERSISTED rows whose
	// enqueue never happened, both untouched since olderThan.
	GetStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.Record, error)
}

type GormRecordRepo struct {
	db *gorm.DB
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db}
}

func (r *GormRecordRepo) Create(ctx context.Context, record *domain.Record) error {
	model := recordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *recordModelToDomain(model)
	}
	return nil
}

func (r *GormRecordRepo) GetByID(ctx context.Context, id int64) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormRecordRepo) ListBySchema(ctx context.Context, schemaName string, limit, offset int) ([]domain.Record, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("schema_name = ?", schemaName)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []RecordModel
	err := query.
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.Record, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, total, nil
}

func (r *GormRecordRepo) MarkForwarding(ctx context.Context, id int64) error {
	// Zero rows affected means the worker already advanced the record; that
	// is not an error.
	return r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPersisted).
		Update("status", domain.StatusForwarding).Error
}

func (r *GormRecordRepo) LockForForwarding(ctx context.Context, id int64) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if model.Status.IsTerminal() {
		return nil, nil
	}

	if model.Status != domain.StatusForwarding {
		if err := r.db.WithContext(ctx).
			Model(&model).
			Update("status", domain.StatusForwarding).Error; err != nil {
			return nil, err
		}
		model.Status = domain.StatusForwarding
	}

	return recordModelToDomain(&model), nil
}

func (r *GormRecordRepo) CompleteForward(ctx context.Context, id int64, status domain.Status, lastError *string) error {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           status,
			"forward_attempts": gorm.Expr("forward_attempts + 1"),
			"last_error":       lastError,
			"next_retry_at":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRecordRepo) ScheduleRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           domain.StatusForwarding,
			"forward_attempts": gorm.Expr("forward_attempts + 1"),
			"last_error":       lastError,
			"next_retry_at":    nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRecordRepo) ClearNextRetryAt(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&RecordModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormRecordRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusForwarding, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormRecordRepo) GetStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.Record, error) {
	var models []RecordModel
	err := r.db.WithContext(ctx).
		Where(
			"(status = ? AND next_retry_at IS NULL AND updated_at < ?) OR (status = ? AND updated_at < ?)",
			domain.StatusForwarding, olderThan,
			domain.StatusPersisted, olderThan,
		).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, nil
}
