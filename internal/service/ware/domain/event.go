package domain

// StockLocked 在一行锁定成功并写入明细后发出，驱动事件对账
type StockLocked struct {
	EventID  string `json:"eventId"`
	TaskID   int64  `json:"taskId"`
	DetailID int64  `json:"detailId"`
	OrderSn  string `json:"orderSn"`
	SkuID    int64  `json:"skuId"`
	WareID   int64  `json:"wareId"`
	SkuNum   int    `json:"skuNum"`
}

// StockReleaseCheck 是按订单的兜底对账触发信号，通常经延迟主题投递
type StockReleaseCheck struct {
	EventID string `json:"eventId"`
	OrderSn string `json:"orderSn"`
}
