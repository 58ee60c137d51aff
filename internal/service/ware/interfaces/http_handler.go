package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"nexus-ware/internal/service/ware/application"
	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// R 是对外统一的响应体，code=0 表示成功
type R struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

type lockOrderRequest struct {
	OrderSn string `json:"orderSn"`
	Locks   []struct {
		SkuID   int64  `json:"skuId"`
		SkuName string `json:"skuName"`
		Count   int    `json:"count"`
	} `json:"locks"`
}

type addStockRequest struct {
	SkuID  int64 `json:"skuId"`
	WareID int64 `json:"wareId"`
	SkuNum int   `json:"skuNum"`
}

type skuHasStockVO struct {
	SkuID    int64 `json:"skuId"`
	HasStock bool  `json:"hasStock"`
}

type wareSkuVO struct {
	ID          int64  `json:"id"`
	SkuID       int64  `json:"skuId"`
	WareID      int64  `json:"wareId"`
	Stock       int    `json:"stock"`
	StockLocked int    `json:"stockLocked"`
	SkuName     string `json:"skuName"`
}

type pageVO struct {
	List       []wareSkuVO `json:"list"`
	TotalCount int64       `json:"totalCount"`
	CurrPage   int         `json:"currPage"`
	PageSize   int         `json:"pageSize"`
}

type detailVO struct {
	ID         int64  `json:"id"`
	TaskID     int64  `json:"taskId"`
	SkuID      int64  `json:"skuId"`
	SkuName    string `json:"skuName"`
	WareID     int64  `json:"wareId"`
	SkuNum     int    `json:"skuNum"`
	LockStatus int    `json:"lockStatus"`
}

type workOrderVO struct {
	ID         int64      `json:"id"`
	OrderSn    string     `json:"orderSn"`
	CreateTime string     `json:"createTime"`
	Details    []detailVO `json:"details"`
}

// WareHandler 封装了库存服务的 HTTP 处理器
type WareHandler struct {
	coordinator *application.ReservationCoordinator
	reconciler  *application.Reconciler
	stock       *application.StockService
}

// NewWareHandler 创建一个新的 HTTP 处理器实例
func NewWareHandler(coordinator *application.ReservationCoordinator, reconciler *application.Reconciler, stock *application.StockService) *WareHandler {
	return &WareHandler{coordinator: coordinator, reconciler: reconciler, stock: stock}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *WareHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /ware/waresku/lock/order", h.handleLockOrder)
	mux.HandleFunc("POST /ware/waresku/hasstock", h.handleHasStock)
	mux.HandleFunc("POST /ware/waresku/add", h.handleAddStock)
	mux.HandleFunc("GET /ware/waresku/list", h.handleList)
	mux.HandleFunc("POST /ware/waresku/unlock/order", h.handleUnlockOrder)
	mux.HandleFunc("GET /ware/wareordertask/info", h.handleWorkOrderInfo)
}

func (h *WareHandler) handleLockOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req lockOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, R{Code: http.StatusBadRequest, Msg: "Invalid request body"})
		return
	}
	lockReq := domain.LockRequest{OrderSn: req.OrderSn}
	for _, l := range req.Locks {
		lockReq.Lines = append(lockReq.Lines, domain.LockLine{SkuID: l.SkuID, SkuName: l.SkuName, Count: l.Count})
	}

	res, err := h.coordinator.LockStock(ctx, lockReq)
	if err != nil {
		if _, ok := domain.IsNoStock(err); ok {
			writeJSON(w, http.StatusConflict, R{Code: domain.NoStockCode, Msg: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success", Data: map[string]interface{}{
		"taskId":  res.TaskID,
		"details": toDetailVOs(res.Details),
	}})
}

func (h *WareHandler) handleHasStock(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var skuIDs []int64
	if err := json.NewDecoder(r.Body).Decode(&skuIDs); err != nil {
		writeJSON(w, http.StatusBadRequest, R{Code: http.StatusBadRequest, Msg: "Invalid request body"})
		return
	}
	res, err := h.stock.GetSkusHasStock(ctx, skuIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]skuHasStockVO, 0, len(res))
	for _, s := range res {
		out = append(out, skuHasStockVO{SkuID: s.SkuID, HasStock: s.HasStock})
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success", Data: out})
}

func (h *WareHandler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, R{Code: http.StatusBadRequest, Msg: "Invalid request body"})
		return
	}
	if err := h.stock.AddStock(ctx, req.SkuID, req.WareID, req.SkuNum); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success"})
}

func (h *WareHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	q := r.URL.Query()
	skuID, _ := strconv.ParseInt(q.Get("skuId"), 10, 64)
	wareID, _ := strconv.ParseInt(q.Get("wareId"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.stock.ListInventory(ctx, domain.InventoryFilter{SkuID: skuID, WareID: wareID}, domain.PageQuery{Page: page, Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}
	vo := pageVO{List: make([]wareSkuVO, 0, len(res.Records)), TotalCount: res.TotalCount, CurrPage: res.Page, PageSize: res.Limit}
	for _, rec := range res.Records {
		vo.List = append(vo.List, wareSkuVO{
			ID: rec.ID, SkuID: rec.SkuID, WareID: rec.WareID,
			Stock: rec.Stock, StockLocked: rec.StockLocked, SkuName: rec.SkuName,
		})
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success", Data: vo})
}

// handleUnlockOrder 手动触发按订单对账，订单服务不可用时返回 503 由调用方重试
func (h *WareHandler) handleUnlockOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	orderSn := r.URL.Query().Get("orderSn")
	if orderSn == "" {
		writeJSON(w, http.StatusBadRequest, R{Code: http.StatusBadRequest, Msg: "orderSn is required"})
		return
	}
	summary, err := h.reconciler.UnlockOrder(ctx, orderSn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success", Data: map[string]interface{}{
		"orderSn":  summary.OrderSn,
		"released": summary.Released,
		"kept":     summary.Kept,
		"skipped":  summary.Skipped,
	}})
}

func (h *WareHandler) handleWorkOrderInfo(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	orderSn := r.URL.Query().Get("orderSn")
	if orderSn == "" {
		writeJSON(w, http.StatusBadRequest, R{Code: http.StatusBadRequest, Msg: "orderSn is required"})
		return
	}
	view, err := h.stock.GetWorkOrder(ctx, orderSn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, R{Code: 0, Msg: "success", Data: workOrderVO{
		ID:         view.ID,
		OrderSn:    view.OrderSn,
		CreateTime: view.CreatedAt.Format("2006-01-02 15:04:05"),
		Details:    toDetailVOs(view.Details),
	}})
}

func toDetailVOs(details []domain.WorkOrderDetail) []detailVO {
	out := make([]detailVO, 0, len(details))
	for _, d := range details {
		out = append(out, detailVO{
			ID: d.ID, TaskID: d.TaskID, SkuID: d.SkuID, SkuName: d.SkuName,
			WareID: d.WareID, SkuNum: d.SkuNum, LockStatus: int(d.LockStatus),
		})
	}
	return out
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInvalidLockRequest),
		errors.Is(err, domain.ErrInvalidStockIntake):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrWorkOrderNotFound),
		errors.Is(err, domain.ErrInventoryNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrOrderLookup):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	writeJSON(w, statusCode, R{Code: statusCode, Msg: err.Error()})
}

func writeJSON(w http.ResponseWriter, statusCode int, body R) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
