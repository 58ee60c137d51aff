package infrastructure

import "nexus-ware/internal/service/ware/domain"

// ToDomainInventory 将数据库模型转换为领域模型
func ToDomainInventory(model *WareSkuModel) *domain.InventoryRecord {
	if model == nil {
		return nil
	}
	return &domain.InventoryRecord{
		ID:          model.ID,
		SkuID:       model.SkuID,
		WareID:      model.WareID,
		Stock:       model.Stock,
		StockLocked: model.StockLocked,
		SkuName:     model.SkuName,
	}
}

func ToDomainWorkOrder(model *WareOrderTaskModel) *domain.WorkOrder {
	if model == nil {
		return nil
	}
	return &domain.WorkOrder{
		ID:        model.ID,
		OrderSn:   model.OrderSn,
		CreatedAt: model.CreateTime,
	}
}

func ToDomainDetail(model *WareOrderTaskDetailModel) *domain.WorkOrderDetail {
	if model == nil {
		return nil
	}
	return &domain.WorkOrderDetail{
		ID:         model.ID,
		TaskID:     model.TaskID,
		SkuID:      model.SkuID,
		SkuName:    model.SkuName,
		WareID:     model.WareID,
		SkuNum:     model.SkuNum,
		LockStatus: domain.LockStatus(model.LockStatus),
	}
}

// FromDomainDetail 用于插入新明细，ID 由数据库生成
func FromDomainDetail(d domain.WorkOrderDetail) *WareOrderTaskDetailModel {
	return &WareOrderTaskDetailModel{
		SkuID:      d.SkuID,
		SkuName:    d.SkuName,
		SkuNum:     d.SkuNum,
		TaskID:     d.TaskID,
		WareID:     d.WareID,
		LockStatus: int8(d.LockStatus),
	}
}

func toDomainDetails(models []WareOrderTaskDetailModel) []domain.WorkOrderDetail {
	out := make([]domain.WorkOrderDetail, 0, len(models))
	for i := range models {
		out = append(out, *ToDomainDetail(&models[i]))
	}
	return out
}
