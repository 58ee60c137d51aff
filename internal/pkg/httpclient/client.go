// internal/pkg/httpclient/client.go

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusError 表示下游返回了非 200 状态码
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d", e.URL, e.StatusCode)
}

// Client 是一个可追踪的HTTP客户端，通过 Resolver 把服务名解析为地址
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	Resolver   Resolver
}

// NewClient 创建客户端。http.Client 不设置 Timeout，超时完全由每次请求的 ctx 控制。
func NewClient(tracer trace.Tracer, resolver Resolver) *Client {
	return &Client{
		Tracer: tracer,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		Resolver: resolver,
	}
}

// GetJSON 调用 serviceName 的 path 接口，并把 JSON 响应解码到 out
func (c *Client) GetJSON(ctx context.Context, serviceName, path string, query url.Values, out interface{}) error {
	ctx, span := c.Tracer.Start(ctx, "call-"+serviceName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	baseURL, err := c.Resolver.Resolve(serviceName)
	if err != nil {
		return fail(err)
	}
	target := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(errors.Wrap(err, "build request"))
	}
	req.Header.Set("Accept", "application/json")
	span.SetAttributes(
		attribute.String("http.url", target),
		attribute.String("http.method", http.MethodGet),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fail(errors.Wrapf(err, "call %s", serviceName))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return fail(&StatusError{URL: target, StatusCode: resp.StatusCode})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fail(errors.Wrapf(err, "decode response from %s", serviceName))
	}
	return nil
}
