package repository

import (
	"context"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

// CreatedAtは呼び出し側のClockで入れる
func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

func (r *auditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&model.AuditLog{})

	if len(f.Actions) > 0 {
		q = q.Where("action IN ?", f.Actions)
	}
	if f.OrderID != nil {
		q = q.Where("resource_type = ? AND resource_id = ?", model.AuditResourceOrder, *f.OrderID)
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", *f.CreatedFrom)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var logs []model.AuditLog
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, err
}
