package infrastructure

import "time"

// WareSkuModel 对应数据库中的 wms_ware_sku 表
type WareSkuModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SkuID       int64  `gorm:"column:sku_id;not null;uniqueIndex:uk_sku_ware,priority:1"`
	WareID      int64  `gorm:"column:ware_id;not null;uniqueIndex:uk_sku_ware,priority:2"`
	Stock       int    `gorm:"column:stock;not null;default:0"`
	SkuName     string `gorm:"column:sku_name;size:200"`
	StockLocked int    `gorm:"column:stock_locked;not null;default:0"`
}

// TableName 指定 GORM 应该使用的表名
func (WareSkuModel) TableName() string {
	return "wms_ware_sku"
}

// WareOrderTaskModel 对应 wms_ware_order_task 表，即工作单头
type WareOrderTaskModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	OrderSn    string    `gorm:"column:order_sn;size:64;not null;index:idx_order_sn"`
	CreateTime time.Time `gorm:"column:create_time;not null"`
}

func (WareOrderTaskModel) TableName() string {
	return "wms_ware_order_task"
}

// WareOrderTaskDetailModel 对应 wms_ware_order_task_detail 表
type WareOrderTaskDetailModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	SkuID      int64  `gorm:"column:sku_id;not null"`
	SkuName    string `gorm:"column:sku_name;size:255"`
	SkuNum     int    `gorm:"column:sku_num;not null"`
	TaskID     int64  `gorm:"column:task_id;not null;index:idx_task_status,priority:1"`
	WareID     int64  `gorm:"column:ware_id;not null"`
	LockStatus int8   `gorm:"column:lock_status;type:tinyint;not null;index:idx_task_status,priority:2"`
}

func (WareOrderTaskDetailModel) TableName() string {
	return "wms_ware_order_task_detail"
}

// AllModels 返回需要 AutoMigrate 的模型
func AllModels() []interface{} {
	return []interface{}{&WareSkuModel{}, &WareOrderTaskModel{}, &WareOrderTaskDetailModel{}}
}
