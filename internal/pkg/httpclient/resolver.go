package httpclient

import (
	"fmt"

	"nexus-ware/internal/pkg/nacos"

	"github.com/pkg/errors"
)

// Resolver 把服务名解析成 base URL，例如 http://10.0.0.3:8081
type Resolver interface {
	Resolve(serviceName string) (string, error)
}

// StaticResolver 使用固定的服务地址表
type StaticResolver map[string]string

func (r StaticResolver) Resolve(serviceName string) (string, error) {
	if u, ok := r[serviceName]; ok && u != "" {
		return u, nil
	}
	return "", errors.Errorf("no static address for service '%s'", serviceName)
}

// NacosResolver 通过 Nacos 选出健康实例，发现失败时回退到静态地址
type NacosResolver struct {
	client   *nacos.Client
	fallback StaticResolver
}

func NewNacosResolver(client *nacos.Client, fallback StaticResolver) *NacosResolver {
	return &NacosResolver{client: client, fallback: fallback}
}

func (r *NacosResolver) Resolve(serviceName string) (string, error) {
	ip, port, err := r.client.DiscoverServiceInstance(serviceName)
	if err == nil {
		return fmt.Sprintf("http://%s:%d", ip, port), nil
	}
	if u, ferr := r.fallback.Resolve(serviceName); ferr == nil {
		return u, nil
	}
	return "", err
}
