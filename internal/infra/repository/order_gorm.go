package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 1候補に一致する注文をこれ以上は読まない（曖昧判定には2件で足りる）
const identifierMatchLimit = 5

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// 注文のどれかの識別子が候補と一致するものを返す
func (r *OrderGormRepository) FindByIdentifier(ctx context.Context, candidate string) ([]model.Order, error) {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return []model.Order{}, nil
	}

	cond := "order_number = ? OR external_reference = ? OR preference_id = ? OR payment_id = ?"
	args := []interface{}{c, c, c, c}
	if id, err := strconv.ParseInt(c, 10, 64); err == nil && id > 0 {
		cond += " OR id = ?"
		args = append(args, id)
	}

	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("("+cond+")", args...).
		Order("id asc").
		Limit(identifierMatchLimit).
		Find(&orders).Error
	if err != nil {
		return []model.Order{}, err
	}
	return orders, nil
}

// 行ロック（同じ注文への同時Webhookはここで直列になる）
func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if order.Emails == nil {
		order.Emails = model.EmailFlags{}
	}
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return model.Order{}, err
	}
	return order, nil
}

// 行全体の置き換え。created_at と emails（MarkEmailFlagだけが書く）は触らない。
func (r *OrderGormRepository) Update(ctx context.Context, order model.Order) (model.Order, error) {
	if order.ID <= 0 {
		return model.Order{}, repo.ErrNotFound
	}

	res := r.db.WithContext(ctx).
		Model(&order).
		Select("*").
		Omit("CreatedAt", "DeletedAt", "Emails").
		Updates(&order)
	if res.Error != nil {
		return model.Order{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.Order{}, repo.ErrNotFound
	}
	return order, nil
}

// emailsの1キーだけ更新。読み取りと書き込みは同じTxの行ロック内で行う。
func (r *OrderGormRepository) MarkEmailFlag(ctx context.Context, orderID int64, flag string, value bool) (model.Order, error) {
	var out model.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			First(&o).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repo.ErrNotFound
		}
		if err != nil {
			return err
		}

		flags := model.EmailFlags{}
		for k, v := range o.Emails {
			flags[k] = v
		}
		flags[flag] = value

		o.Emails = flags
		res := tx.Model(&o).Select("Emails").Updates(&o)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		out = o
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return out, nil
}

// 期間内でまだpendingの注文
func (r *OrderGormRepository) ListUnsettled(ctx context.Context, f repo.ReconcileListFilter) ([]model.Order, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	q := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("payment_status_code = ? OR payment_status_code = ? OR payment_status_code IS NULL", "pending", "")
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom)
	}

	var orders []model.Order
	if err := q.Order("id asc").Limit(limit).Find(&orders).Error; err != nil {
		return []model.Order{}, err
	}
	return orders, nil
}
