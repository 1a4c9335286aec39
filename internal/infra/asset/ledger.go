package asset

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yonagi/curio/internal/domain"
	"github.com/yonagi/curio/internal/infra/database"
	"github.com/yonagi/curio/internal/infra/database/models"
	"github.com/yonagi/curio/internal/usecase"
)

// Ledger is a postgres-backed settlement asset. Deployments fronting a
// real external ledger swap this out behind usecase.SettlementAsset; this
// implementation exists so a single node is tradeable out of the box.
//
// Calls join a transaction carried in the context, so asset legs roll back
// together with the settlement that issued them.
type Ledger struct {
	db      *gorm.DB
	assetID string
}

func NewLedger(db *gorm.DB, assetID string) *Ledger {
	return &Ledger{db: db, assetID: assetID}
}

func (l *Ledger) conn(ctx context.Context) *gorm.DB {
	return database.TxFrom(ctx, l.db).WithContext(ctx)
}

func (l *Ledger) BalanceOf(ctx context.Context, principal string) (uint64, error) {
	var row models.AssetBalance
	err := l.conn(ctx).
		Where("asset = ? AND principal = ?", l.assetID, principal).
		Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender string) (uint64, error) {
	var row models.AssetAllowance
	err := l.conn(ctx).
		Where("asset = ? AND owner = ? AND spender = ?", l.assetID, owner, spender).
		Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Amount, nil
}

// TransferFrom debits from and credits to. The guarded debit keeps the
// balance from going negative under any interleaving.
func (l *Ledger) TransferFrom(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return l.conn(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.AssetBalance{}).
			Where("asset = ? AND principal = ? AND amount >= ?", l.assetID, from, amount).
			Update("amount", gorm.Expr("amount - ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var row models.AssetBalance
			tx.Where("asset = ? AND principal = ?", l.assetID, from).Take(&row)
			return domain.InsufficientFundsError{Need: amount, Have: row.Amount}
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "asset"}, {Name: "principal"}},
			DoUpdates: clause.Assignments(map[string]any{
				"amount": gorm.Expr("asset_balances.amount + ?", amount),
			}),
		}).Create(&models.AssetBalance{
			Asset:     l.assetID,
			Principal: to,
			Amount:    amount,
		}).Error
	})
}

// Approve records the owner's spending allowance for a spender, replacing
// any prior value.
func (l *Ledger) Approve(ctx context.Context, owner, spender string, amount uint64) error {
	return l.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset"}, {Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount": amount,
		}),
	}).Create(&models.AssetAllowance{
		Asset:   l.assetID,
		Owner:   owner,
		Spender: spender,
		Amount:  amount,
	}).Error
}

// Mint credits freshly issued units to a principal. The single-node
// deployment exposes this as a faucet.
func (l *Ledger) Mint(ctx context.Context, to string, amount uint64) error {
	return l.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset"}, {Name: "principal"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount": gorm.Expr("asset_balances.amount + ?", amount),
		}),
	}).Create(&models.AssetBalance{
		Asset:     l.assetID,
		Principal: to,
		Amount:    amount,
	}).Error
}

var _ usecase.SettlementAsset = (*Ledger)(nil)
