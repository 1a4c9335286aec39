package repository

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
	"github.com/yonagi/curio/internal/infra/database"
	"github.com/yonagi/curio/internal/infra/database/models"
	"github.com/yonagi/curio/internal/usecase"
)

// ExchangeRepository implements the order book and exchange state over the
// same postgres instance the registry writes to, so settlements mutate
// registry ownership inside one transaction.
type ExchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) *ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Atomic runs fn in one transaction. The transaction rides the context so
// every store call inside fn, including the settlement-asset ledger, joins
// it.
func (r *ExchangeRepository) Atomic(ctx context.Context, fn func(ctx context.Context, s usecase.ExchangeStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(database.WithTx(ctx, tx), r)
	})
}

func (r *ExchangeRepository) conn(ctx context.Context) *gorm.DB {
	return database.TxFrom(ctx, r.db).WithContext(ctx)
}

func (r *ExchangeRepository) GetOrder(ctx context.Context, kind curio.OrderKind, subject int64) (curio.Order, error) {
	var row models.Order
	err := r.conn(ctx).
		Where("kind = ? AND subject = ?", string(kind), subject).
		Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Order{}, domain.NotFoundError{Resource: "order"}
		}
		return curio.Order{}, err
	}
	return curio.Order{
		Kind:      curio.OrderKind(row.Kind),
		Subject:   row.Subject,
		Maker:     row.Maker,
		Price:     row.Price,
		Remaining: row.Remaining,
		Expiry:    row.Expiry,
	}, nil
}

func (r *ExchangeRepository) PutOrder(ctx context.Context, order curio.Order) error {
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "subject"}},
		DoUpdates: clause.Assignments(map[string]any{
			"maker":     order.Maker,
			"price":     order.Price,
			"remaining": order.Remaining,
			"expiry":    order.Expiry,
		}),
	}).Create(&models.Order{
		Kind:      string(order.Kind),
		Subject:   order.Subject,
		Maker:     order.Maker,
		Price:     order.Price,
		Remaining: order.Remaining,
		Expiry:    order.Expiry,
	}).Error
}

func (r *ExchangeRepository) RemoveOrder(ctx context.Context, kind curio.OrderKind, subject int64) error {
	return r.conn(ctx).
		Delete(&models.Order{}, "kind = ? AND subject = ?", string(kind), subject).Error
}

func (r *ExchangeRepository) GetItem(ctx context.Context, id int64) (curio.Item, error) {
	var item models.Item
	err := r.conn(ctx).Where("id = ?", id).Take(&item).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Item{}, domain.NotFoundError{Resource: "item"}
		}
		return curio.Item{}, err
	}
	return toItem(item), nil
}

func (r *ExchangeRepository) SetItemOwner(ctx context.Context, id int64, owner string) error {
	result := r.conn(ctx).Model(&models.Item{}).Where("id = ?", id).Update("owner", owner)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "item"}
	}
	return nil
}

// GetCollection reads the row directly. Settlement runs inside a
// transaction, so the memcache layer the registry repository uses is
// deliberately not consulted here.
func (r *ExchangeRepository) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	var row models.Collection
	err := r.conn(ctx).Preload("Royalties").Where("id = ?", id).Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
		}
		return curio.Collection{}, err
	}
	return toCollection(row), nil
}

func (r *ExchangeRepository) GetApproval(ctx context.Context, owner, operator string) (bool, error) {
	var approval models.Approval
	err := r.conn(ctx).
		Where("owner = ? AND operator = ?", owner, operator).
		Take(&approval).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return approval.Granted, nil
}

func (r *ExchangeRepository) State(ctx context.Context) (domain.ExchangeState, error) {
	var row models.ExchangeState
	err := r.conn(ctx).Where("id = ?", 1).Take(&row).Error
	if err != nil {
		return domain.ExchangeState{}, err
	}
	return domain.ExchangeState{
		Owner:        row.Owner,
		PendingOwner: row.PendingOwner,
		FeeBps:       row.FeeBps,
	}, nil
}

func (r *ExchangeRepository) SetState(ctx context.Context, state domain.ExchangeState) error {
	return r.conn(ctx).Model(&models.ExchangeState{}).
		Where("id = ?", 1).
		Updates(map[string]any{
			"owner":         state.Owner,
			"pending_owner": state.PendingOwner,
			"fee_bps":       state.FeeBps,
		}).Error
}

func (r *ExchangeRepository) AccrueFee(ctx context.Context, asset string, amount uint64) error {
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount": gorm.Expr("fee_balances.amount + ?", amount),
		}),
	}).Create(&models.FeeBalance{
		Asset:  asset,
		Amount: amount,
	}).Error
}

func (r *ExchangeRepository) FeeBalance(ctx context.Context, asset string) (uint64, error) {
	var row models.FeeBalance
	err := r.conn(ctx).Where("asset = ?", asset).Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

func (r *ExchangeRepository) DrainFee(ctx context.Context, asset string, amount uint64) error {
	result := r.conn(ctx).Model(&models.FeeBalance{}).
		Where("asset = ? AND amount >= ?", asset, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		have, err := r.FeeBalance(ctx, asset)
		if err != nil {
			return err
		}
		return domain.InsufficientFundsError{Need: amount, Have: have}
	}
	return nil
}

var _ usecase.ExchangeRepository = (*ExchangeRepository)(nil)
var _ usecase.RegistryStore = (*RegistryRepository)(nil)
