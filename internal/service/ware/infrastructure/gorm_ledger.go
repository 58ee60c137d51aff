package infrastructure

import (
	"context"

	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger 是 domain.Ledger 的 GORM 实现。
// 预占依赖一条带条件的 UPDATE，行锁保证并发下不会超卖。
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Reserve UPDATE wms_ware_sku SET stock_locked = stock_locked + ? WHERE sku_id = ? AND ware_id = ? AND stock - stock_locked >= ?
func (r *GormLedger) Reserve(ctx context.Context, skuID, wareID int64, count int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&WareSkuModel{}).
		Where("sku_id = ? AND ware_id = ? AND stock - stock_locked >= ?", skuID, wareID, count).
		Update("stock_locked", gorm.Expr("stock_locked + ?", count))
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "reserve sku %d ware %d", skuID, wareID)
	}
	return res.RowsAffected == 1, nil
}

// Release 归还预占，下限为 0
func (r *GormLedger) Release(ctx context.Context, skuID, wareID int64, count int) error {
	err := r.db.WithContext(ctx).Model(&WareSkuModel{}).
		Where("sku_id = ? AND ware_id = ?", skuID, wareID).
		Update("stock_locked", gorm.Expr("CASE WHEN stock_locked >= ? THEN stock_locked - ? ELSE 0 END", count, count)).
		Error
	return errors.Wrapf(err, "release sku %d ware %d", skuID, wareID)
}

func (r *GormLedger) CandidateWarehouses(ctx context.Context, skuID int64) ([]int64, error) {
	var wareIDs []int64
	err := r.db.WithContext(ctx).Model(&WareSkuModel{}).
		Where("sku_id = ? AND stock - stock_locked > 0", skuID).
		Order("ware_id").
		Pluck("ware_id", &wareIDs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list candidate warehouses for sku %d", skuID)
	}
	return wareIDs, nil
}

func (r *GormLedger) HasStock(ctx context.Context, skuID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&WareSkuModel{}).
		Where("sku_id = ? AND stock - stock_locked > 0", skuID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrapf(err, "check stock for sku %d", skuID)
	}
	return n > 0, nil
}

// AddStock 入库。并发插入同一 (sku, ware) 时由唯一索引兜底，转为累加。
func (r *GormLedger) AddStock(ctx context.Context, skuID, wareID int64, count int, skuName string) error {
	model := &WareSkuModel{SkuID: skuID, WareID: wareID, Stock: count, SkuName: skuName}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku_id"}, {Name: "ware_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"stock": gorm.Expr("stock + ?", count)}),
		}).
		Create(model).Error
	return errors.Wrapf(err, "add stock sku %d ware %d", skuID, wareID)
}

func (r *GormLedger) Exists(ctx context.Context, skuID, wareID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&WareSkuModel{}).
		Where("sku_id = ? AND ware_id = ?", skuID, wareID).
		Count(&n).Error
	if err != nil {
		return false, errors.Wrap(err, "count ware sku")
	}
	return n > 0, nil
}

func (r *GormLedger) Get(ctx context.Context, skuID, wareID int64) (*domain.InventoryRecord, error) {
	var model WareSkuModel
	err := r.db.WithContext(ctx).Where("sku_id = ? AND ware_id = ?", skuID, wareID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInventoryNotFound
		}
		return nil, errors.Wrap(err, "get ware sku")
	}
	return ToDomainInventory(&model), nil
}

func (r *GormLedger) List(ctx context.Context, filter domain.InventoryFilter, page domain.PageQuery) (*domain.InventoryPage, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&WareSkuModel{})
	if filter.SkuID != 0 {
		q = q.Where("sku_id = ?", filter.SkuID)
	}
	if filter.WareID != 0 {
		q = q.Where("ware_id = ?", filter.WareID)
	}
	// Count 和 Find 共用同一组条件
	q = q.Session(&gorm.Session{})

	out := &domain.InventoryPage{Page: page.Page, Limit: page.Limit}
	if err := q.Count(&out.TotalCount).Error; err != nil {
		return nil, errors.Wrap(err, "count ware sku")
	}

	var models []WareSkuModel
	if err := q.Order("id").Offset(page.Offset()).Limit(page.Limit).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list ware sku")
	}
	for i := range models {
		out.Records = append(out.Records, *ToDomainInventory(&models[i]))
	}
	return out, nil
}
