package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"nexus-ware/internal/pkg/httpclient"
	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
)

// OrderHTTPAdapter 是 port.OrderService 的 HTTP 实现
type OrderHTTPAdapter struct {
	client      *httpclient.Client
	serviceName string
}

// NewOrderHTTPAdapter 查询超时由调用方的 ctx 决定
func NewOrderHTTPAdapter(client *httpclient.Client, serviceName string) *OrderHTTPAdapter {
	return &OrderHTTPAdapter{client: client, serviceName: serviceName}
}

// orderStatusResponse 对应订单服务 GET /order/order/status/{orderSn} 的响应
// {"code":0,"msg":"success","data":{"orderSn":"...","status":4}}，订单不存在时 data 为 null
type orderStatusResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type orderVo struct {
	OrderSn string `json:"orderSn"`
	Status  int    `json:"status"`
}

func (a *OrderHTTPAdapter) GetOrderStatus(ctx context.Context, orderSn string) (domain.OrderSnapshot, error) {
	snapshot := domain.OrderSnapshot{OrderSn: orderSn}

	var resp orderStatusResponse
	path := "/order/order/status/" + url.PathEscape(orderSn)
	if err := a.client.GetJSON(ctx, a.serviceName, path, nil, &resp); err != nil {
		return snapshot, fmt.Errorf("%w: %v", domain.ErrOrderLookup, err)
	}
	if resp.Code != 0 {
		return snapshot, fmt.Errorf("%w: order service returned code %d (%s)", domain.ErrOrderLookup, resp.Code, resp.Msg)
	}

	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return snapshot, nil
	}
	var vo orderVo
	if err := json.Unmarshal(resp.Data, &vo); err != nil {
		return snapshot, fmt.Errorf("%w: %v", domain.ErrOrderLookup, errors.Wrap(err, "decode order vo"))
	}
	snapshot.Found = true
	snapshot.Status = domain.OrderStatusFromCode(vo.Status)
	return snapshot, nil
}
