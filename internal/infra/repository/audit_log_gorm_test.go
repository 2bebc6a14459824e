package repository_test

import (
	"context"
	"testing"
	"time"

	"reconciler/internal/domain/model"
	infraRepo "reconciler/internal/infra/repository"
	repo "reconciler/internal/repository"
	"reconciler/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogGorm_ListFilters(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	ctx := context.Background()
	r := infraRepo.NewAuditLogGormRepository(gdb)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []model.AuditLog{
		{Action: model.AuditActionUpdatePaymentStatus, ResourceID: 1, CreatedAt: base},
		{Action: model.AuditActionPaymentMismatch, ResourceID: 1, CreatedAt: base.Add(time.Minute)},
		{Action: model.AuditActionUpdatePaymentStatus, ResourceID: 2, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, l := range seed {
		l.ActorUserID = model.SystemActorID
		l.ResourceType = model.AuditResourceOrder
		require.NoError(t, r.Create(ctx, l))
	}

	// 新しい順
	all, err := r.List(ctx, repo.AuditLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[0].ResourceID)

	orderID := int64(1)
	byOrder, err := r.List(ctx, repo.AuditLogFilter{OrderID: &orderID})
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	assert.Equal(t, model.AuditActionPaymentMismatch, byOrder[0].Action)

	mismatches, err := r.List(ctx, repo.AuditLogFilter{Actions: []model.AuditAction{model.AuditActionPaymentMismatch}})
	require.NoError(t, err)
	require.Len(t, mismatches, 1)

	from := base.Add(90 * time.Second)
	recent, err := r.List(ctx, repo.AuditLogFilter{CreatedFrom: &from})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].ResourceID)

	limited, err := r.List(ctx, repo.AuditLogFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, model.AuditActionPaymentMismatch, limited[0].Action)
}
