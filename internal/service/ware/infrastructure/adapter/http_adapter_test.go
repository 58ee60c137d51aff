package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"nexus-ware/internal/pkg/httpclient"
	"nexus-ware/internal/service/ware/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *httpclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return httpclient.NewClient(noop.NewTracerProvider().Tracer("ware-test"), httpclient.StaticResolver{
		"order-service":   srv.URL,
		"product-service": srv.URL,
	})
}

func TestOrderHTTPAdapter_GetOrderStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/order/order/status/SN-CANCELLED":
			w.Write([]byte(`{"code":0,"msg":"success","data":{"orderSn":"SN-CANCELLED","status":4}}`))
		case "/order/order/status/SN-PAID":
			w.Write([]byte(`{"code":0,"msg":"success","data":{"orderSn":"SN-PAID","status":1}}`))
		case "/order/order/status/SN-MISSING":
			w.Write([]byte(`{"code":0,"msg":"success","data":null}`))
		case "/order/order/status/SN-ERR":
			w.Write([]byte(`{"code":10000,"msg":"系统未知异常"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	a := NewOrderHTTPAdapter(client, "order-service")
	ctx := context.Background()

	snap, err := a.GetOrderStatus(ctx, "SN-CANCELLED")
	require.NoError(t, err)
	assert.True(t, snap.Found)
	assert.Equal(t, domain.OrderStatusCancelled, snap.Status)

	snap, err = a.GetOrderStatus(ctx, "SN-PAID")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, snap.Status)

	snap, err = a.GetOrderStatus(ctx, "SN-MISSING")
	require.NoError(t, err)
	assert.False(t, snap.Found)

	_, err = a.GetOrderStatus(ctx, "SN-ERR")
	assert.ErrorIs(t, err, domain.ErrOrderLookup)

	_, err = a.GetOrderStatus(ctx, "SN-500")
	assert.ErrorIs(t, err, domain.ErrOrderLookup)
}

func TestOrderHTTPAdapter_UnresolvableServiceIsLookupFailure(t *testing.T) {
	client := httpclient.NewClient(noop.NewTracerProvider().Tracer("ware-test"), httpclient.StaticResolver{})
	_, err := NewOrderHTTPAdapter(client, "order-service").GetOrderStatus(context.Background(), "SN-1")
	assert.ErrorIs(t, err, domain.ErrOrderLookup)
}

func TestCatalogHTTPAdapter_GetSkuName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/product/skuinfo/info/1":
			w.Write([]byte(`{"code":0,"msg":"success","skuInfo":{"skuId":1,"skuName":"小米 14 黑色"}}`))
		case "/product/skuinfo/info/2":
			w.Write([]byte(`{"code":0,"msg":"success","skuInfo":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	a := NewCatalogHTTPAdapter(client, "product-service")

	name, err := a.GetSkuName(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "小米 14 黑色", name)

	_, err = a.GetSkuName(context.Background(), 2)
	assert.Error(t, err)

	_, err = a.GetSkuName(context.Background(), 3)
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
