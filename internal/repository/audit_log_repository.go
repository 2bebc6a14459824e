package repository

import (
	"context"
	"time"

	"reconciler/internal/domain/model"
)

// 照合履歴の絞り込み（注文単位）
type AuditLogFilter struct {
	Actions     []model.AuditAction // 空なら全部
	OrderID     *int64
	CreatedFrom *time.Time
	Limit       int
	Offset      int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 新しい順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
