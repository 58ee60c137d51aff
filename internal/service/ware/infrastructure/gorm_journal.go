package infrastructure

import (
	"context"
	"time"

	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormJournal 是 domain.Journal 的 GORM 实现
type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (r *GormJournal) OpenWorkOrder(ctx context.Context, orderSn string) (*domain.WorkOrder, error) {
	model := &WareOrderTaskModel{OrderSn: orderSn, CreateTime: time.Now()}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, errors.Wrapf(err, "open work order for %s", orderSn)
	}
	return ToDomainWorkOrder(model), nil
}

func (r *GormJournal) RecordLock(ctx context.Context, detail domain.WorkOrderDetail) (*domain.WorkOrderDetail, error) {
	detail.LockStatus = domain.LockStatusLocked
	model := FromDomainDetail(detail)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, errors.Wrapf(err, "record lock for task %d", detail.TaskID)
	}
	return ToDomainDetail(model), nil
}

// MarkUnlocked 只更新仍处于 LOCKED 的明细，RowsAffected 为 0 说明已经解锁过
func (r *GormJournal) MarkUnlocked(ctx context.Context, detailID int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&WareOrderTaskDetailModel{}).
		Where("id = ? AND lock_status = ?", detailID, int8(domain.LockStatusLocked)).
		Update("lock_status", int8(domain.LockStatusUnlocked))
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "mark detail %d unlocked", detailID)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.FindDetail(ctx, detailID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *GormJournal) FindDetail(ctx context.Context, detailID int64) (*domain.WorkOrderDetail, error) {
	var model WareOrderTaskDetailModel
	err := r.db.WithContext(ctx).First(&model, detailID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDetailNotFound
		}
		return nil, errors.Wrapf(err, "find detail %d", detailID)
	}
	return ToDomainDetail(&model), nil
}

func (r *GormJournal) FindWorkOrder(ctx context.Context, taskID int64) (*domain.WorkOrder, error) {
	var model WareOrderTaskModel
	err := r.db.WithContext(ctx).First(&model, taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWorkOrderNotFound
		}
		return nil, errors.Wrapf(err, "find work order %d", taskID)
	}
	return ToDomainWorkOrder(&model), nil
}

func (r *GormJournal) ListLocked(ctx context.Context, taskID int64) ([]domain.WorkOrderDetail, error) {
	var models []WareOrderTaskDetailModel
	err := r.db.WithContext(ctx).
		Where("task_id = ? AND lock_status = ?", taskID, int8(domain.LockStatusLocked)).
		Order("id").Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list locked details of task %d", taskID)
	}
	return toDomainDetails(models), nil
}

func (r *GormJournal) ListDetails(ctx context.Context, taskID int64) ([]domain.WorkOrderDetail, error) {
	var models []WareOrderTaskDetailModel
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list details of task %d", taskID)
	}
	return toDomainDetails(models), nil
}

func (r *GormJournal) GetWorkOrderByOrderSn(ctx context.Context, orderSn string) (*domain.WorkOrder, error) {
	var model WareOrderTaskModel
	err := r.db.WithContext(ctx).Where("order_sn = ?", orderSn).Order("id DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWorkOrderNotFound
		}
		return nil, errors.Wrapf(err, "get work order by order sn %s", orderSn)
	}
	return ToDomainWorkOrder(&model), nil
}

func (r *GormJournal) ListWorkOrdersByOrderSn(ctx context.Context, orderSn string) ([]domain.WorkOrder, error) {
	var models []WareOrderTaskModel
	if err := r.db.WithContext(ctx).Where("order_sn = ?", orderSn).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list work orders by order sn %s", orderSn)
	}
	out := make([]domain.WorkOrder, 0, len(models))
	for i := range models {
		out = append(out, *ToDomainWorkOrder(&models[i]))
	}
	return out, nil
}
