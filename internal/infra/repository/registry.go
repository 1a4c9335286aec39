package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/domain"
	"github.com/yonagi/curio/internal/infra/database"
	"github.com/yonagi/curio/internal/infra/database/models"
)

const collectionCacheTTL = 60 // seconds

type RegistryRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewRegistryRepository(db *gorm.DB, mc *memcache.Client) *RegistryRepository {
	return &RegistryRepository{db: db, mc: mc}
}

func (r *RegistryRepository) conn(ctx context.Context) *gorm.DB {
	return database.TxFrom(ctx, r.db).WithContext(ctx)
}

func collectionCacheKey(id int64) string {
	return fmt.Sprintf("curio:collection:%d", id)
}

func (r *RegistryRepository) GetItem(ctx context.Context, id int64) (curio.Item, error) {
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

func (r *RegistryRepository) GetItemByHash(ctx context.Context, collectionID int64, hash string) (curio.Item, error) {
	var item models.Item
	err := r.conn(ctx).
		Where("collection_id = ? AND content_hash = ?", collectionID, hash).
		Take(&item).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Item{}, domain.NotFoundError{Resource: "item"}
		}
		return curio.Item{}, err
	}
	return toItem(item), nil
}

// CreateItem assigns MAX(id)+1 inside the transaction so the first item
// gets id 0. The unique (collection_id, content_hash) index backstops the
// usecase's dedup check; a violation is mapped back to the existing row.
func (r *RegistryRepository) CreateItem(ctx context.Context, item curio.Item) (curio.Item, error) {
	row := models.Item{
		CollectionID: item.CollectionID,
		ContentHash:  item.ContentHash,
		Owner:        item.Owner,
		CDate:        item.RegisteredAt,
	}

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var nextID int64
		err := tx.Model(&models.Item{}).
			Select("COALESCE(MAX(id) + 1, 0)").
			Scan(&nextID).Error
		if err != nil {
			return err
		}
		row.ID = nextID

		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		return tx.Model(&models.Collection{}).
			Where("id = ?", item.CollectionID).
			Update("item_count", gorm.Expr("item_count + 1")).Error
	})
	if err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := r.GetItemByHash(ctx, item.CollectionID, item.ContentHash)
			if lookupErr != nil {
				return curio.Item{}, errors.Wrap(err, "duplicate item lookup failed")
			}
			return curio.Item{}, domain.AlreadyRegisteredError{
				ContentHash:  existing.ContentHash,
				Owner:        existing.Owner,
				ItemID:       existing.ID,
				RegisteredAt: existing.RegisteredAt,
			}
		}
		return curio.Item{}, err
	}

	r.invalidateCollection(item.CollectionID)
	return toItem(row), nil
}

func (r *RegistryRepository) SetItemOwner(ctx context.Context, id int64, owner string) error {
	result := r.conn(ctx).Model(&models.Item{}).Where("id = ?", id).Update("owner", owner)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "item"}
	}
	return nil
}

func (r *RegistryRepository) DeleteItem(ctx context.Context, id int64) error {
	var collectionID int64
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "item"}
			}
			return err
		}
		collectionID = item.CollectionID

		if err := tx.Delete(&models.Item{}, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Model(&models.Collection{}).
			Where("id = ?", item.CollectionID).
			Update("item_count", gorm.Expr("item_count - 1")).Error
	})
	if err != nil {
		return err
	}

	r.invalidateCollection(collectionID)
	return nil
}

func (r *RegistryRepository) ListItems(ctx context.Context, count, offset int) ([]curio.Item, error) {
	var rows []models.Item
	err := r.conn(ctx).
		Order("id ASC").
		Limit(count).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]curio.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(row))
	}
	return items, nil
}

func (r *RegistryRepository) GetCollection(ctx context.Context, id int64) (curio.Collection, error) {
	if cached, err := r.mc.Get(collectionCacheKey(id)); err == nil {
		var col curio.Collection
		if err := json.Unmarshal(cached.Value, &col); err == nil {
			return col, nil
		}
	}

	var row models.Collection
	err := r.conn(ctx).Preload("Royalties").Where("id = ?", id).Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
		}
		return curio.Collection{}, err
	}

	col := toCollection(row)
	if serialized, err := json.Marshal(col); err == nil {
		r.mc.Set(&memcache.Item{
			Key:        collectionCacheKey(id),
			Value:      serialized,
			Expiration: collectionCacheTTL,
		})
	}
	return col, nil
}

func (r *RegistryRepository) GetCollectionByName(ctx context.Context, name string) (curio.Collection, error) {
	var row models.Collection
	err := r.conn(ctx).Preload("Royalties").Where("name = ?", name).Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
		}
		return curio.Collection{}, err
	}
	return toCollection(row), nil
}

func (r *RegistryRepository) GetCollectionByInbox(ctx context.Context, inboxAddress string) (curio.Collection, error) {
	var row models.Collection
	err := r.conn(ctx).Preload("Royalties").Where("inbox_address = ?", inboxAddress).Take(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return curio.Collection{}, domain.NotFoundError{Resource: "collection"}
		}
		return curio.Collection{}, err
	}
	return toCollection(row), nil
}

// CreateCollection assigns MAX(id)+1 and derives the inbox address from the
// assigned id. The seeded default collection holds id 0, so user
// collections start at 1.
func (r *RegistryRepository) CreateCollection(ctx context.Context, col curio.Collection) (curio.Collection, error) {
	row := models.Collection{
		Name:        col.Name,
		Description: col.Description,
		Owner:       col.Owner,
		Fuses:       col.Fuses,
		CDate:       col.CreatedAt,
	}
	for _, share := range col.Royalties {
		row.Royalties = append(row.Royalties, models.Royalty{
			Recipient: share.Recipient,
			Bps:       share.Bps,
		})
	}

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var nextID int64
		err := tx.Model(&models.Collection{}).
			Select("COALESCE(MAX(id) + 1, 0)").
			Scan(&nextID).Error
		if err != nil {
			return err
		}
		row.ID = nextID
		row.InboxAddress = curio.DeriveInboxAddress(nextID)
		return tx.Create(&row).Error
	})
	if err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return curio.Collection{}, domain.DuplicateCollectionNameError{Name: col.Name}
		}
		return curio.Collection{}, err
	}

	return toCollection(row), nil
}

func (r *RegistryRepository) UpdateCollectionDescription(ctx context.Context, id int64, description string) error {
	result := r.conn(ctx).Model(&models.Collection{}).
		Where("id = ?", id).
		Update("description", description)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "collection"}
	}

	r.invalidateCollection(id)
	return nil
}

func (r *RegistryRepository) UpdateCollectionRoyalties(ctx context.Context, id int64, royalties []curio.RoyaltyShare) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Royalty{}, "collection_id = ?", id).Error; err != nil {
			return err
		}
		for _, share := range royalties {
			err := tx.Create(&models.Royalty{
				CollectionID: id,
				Recipient:    share.Recipient,
				Bps:          share.Bps,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.invalidateCollection(id)
	return nil
}

func (r *RegistryRepository) SetCollectionFuses(ctx context.Context, id int64, fuses domain.Fuse) error {
	result := r.conn(ctx).Model(&models.Collection{}).
		Where("id = ?", id).
		Update("fuses", uint8(fuses))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "collection"}
	}

	r.invalidateCollection(id)
	return nil
}

func (r *RegistryRepository) ListCollections(ctx context.Context, count, offset int) ([]curio.Collection, error) {
	var rows []models.Collection
	err := r.conn(ctx).
		Preload("Royalties").
		Order("id ASC").
		Limit(count).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	cols := make([]curio.Collection, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, toCollection(row))
	}
	return cols, nil
}

func (r *RegistryRepository) GetApproval(ctx context.Context, owner, operator string) (bool, error) {
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

func (r *RegistryRepository) SetApproval(ctx context.Context, owner, operator string, granted bool) error {
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}, {Name: "operator"}},
		DoUpdates: clause.Assignments(map[string]any{"granted": granted}),
	}).Create(&models.Approval{
		Owner:    owner,
		Operator: operator,
		Granted:  granted,
	}).Error
}

func (r *RegistryRepository) IsMinter(ctx context.Context, collectionID int64, principal string) (bool, error) {
	var count int64
	err := r.conn(ctx).Model(&models.Minter{}).
		Where("collection_id = ? AND principal = ?", collectionID, principal).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RegistryRepository) SetMinter(ctx context.Context, collectionID int64, principal string, allowed bool) error {
	if !allowed {
		return r.conn(ctx).
			Delete(&models.Minter{}, "collection_id = ? AND principal = ?", collectionID, principal).Error
	}
	return r.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Minter{
		CollectionID: collectionID,
		Principal:    principal,
	}).Error
}

func (r *RegistryRepository) invalidateCollection(id int64) {
	r.mc.Delete(collectionCacheKey(id))
}

func toItem(row models.Item) curio.Item {
	return curio.Item{
		ID:           row.ID,
		CollectionID: row.CollectionID,
		ContentHash:  row.ContentHash,
		Owner:        row.Owner,
		RegisteredAt: row.CDate,
	}
}

func toCollection(row models.Collection) curio.Collection {
	col := curio.Collection{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		Owner:        row.Owner,
		InboxAddress: row.InboxAddress,
		Fuses:        row.Fuses,
		ItemCount:    row.ItemCount,
		CreatedAt:    row.CDate,
	}
	for _, share := range row.Royalties {
		col.Royalties = append(col.Royalties, curio.RoyaltyShare{
			Recipient: share.Recipient,
			Bps:       share.Bps,
		})
	}
	return col
}
