package adapter

import (
	"context"
	"strconv"

	"nexus-ware/internal/pkg/httpclient"

	"github.com/pkg/errors"
)

// CatalogHTTPAdapter 是 port.CatalogService 的 HTTP 实现，调用商品服务查询 SKU 名称
type CatalogHTTPAdapter struct {
	client      *httpclient.Client
	serviceName string
}

func NewCatalogHTTPAdapter(client *httpclient.Client, serviceName string) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client, serviceName: serviceName}
}

type skuInfoResponse struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	SkuInfo *struct {
		SkuID   int64  `json:"skuId"`
		SkuName string `json:"skuName"`
	} `json:"skuInfo"`
}

func (a *CatalogHTTPAdapter) GetSkuName(ctx context.Context, skuID int64) (string, error) {
	var resp skuInfoResponse
	path := "/product/skuinfo/info/" + strconv.FormatInt(skuID, 10)
	if err := a.client.GetJSON(ctx, a.serviceName, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", errors.Errorf("product service returned code %d (%s)", resp.Code, resp.Msg)
	}
	if resp.SkuInfo == nil {
		return "", errors.Errorf("sku %d not found in catalog", skuID)
	}
	return resp.SkuInfo.SkuName, nil
}
