// internal/pkg/nacos/client.go
package nacos

import (
	"context"
	"strconv"
	"strings"

	"nexus-ware/internal/pkg/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
)

const defaultGroup = "DEFAULT_GROUP"

// Client 封装了 Nacos 的命名客户端和配置客户端
type Client struct {
	namingClient naming_client.INamingClient
	configClient config_client.IConfigClient

	namespaceId string
	groupName   string
}

// ParseServerConfigs 解析 "ip1:port1,ip2:port2" 格式的地址
func ParseServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	if len(serverConfigs) == 0 {
		return nil, errors.New("no nacos server address configured")
	}
	return serverConfigs, nil
}

// NewNacosClient 创建并返回一个新的 Nacos 客户端（命名 + 配置）
func NewNacosClient(addrs, namespaceId, groupName string) (*Client, error) {
	ctx := context.Background()
	if namespaceId == "" {
		logger.Ctx(ctx).Warn().Msg("⚠️ NACOS_NAMESPACE is not set. Using default public namespace.")
	}
	if groupName == "" {
		groupName = defaultGroup
	}

	serverConfigs, err := ParseServerConfigs(addrs)
	if err != nil {
		return nil, err
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceId),
	)
	param := vo.NacosClientParam{ClientConfig: &clientConfig, ServerConfigs: serverConfigs}

	namingClient, err := clients.NewNamingClient(param)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos naming client")
	}
	configClient, err := clients.NewConfigClient(param)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos config client")
	}

	logger.Ctx(ctx).Info().Str("addrs", addrs).Str("group", groupName).Msg("✅ Successfully connected to Nacos.")
	return &Client{
		namingClient: namingClient,
		configClient: configClient,
		namespaceId:  namespaceId,
		groupName:    groupName,
	}, nil
}

// RegisterServiceInstance 注册一个临时服务实例，心跳断开后自动摘除
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "failed to register service with nacos")
	}
	if !success {
		return errors.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.Ctx(context.Background()).Info().Str("service", serviceName).Str("ip", ip).Int("port", port).
		Msg("✅ Service registered to Nacos")
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return errors.Wrap(err, "failed to deregister service with nacos")
	}
	return nil
}

// DiscoverServiceInstance 使用 Nacos 内置负载均衡选出一个健康实例
func (c *Client) DiscoverServiceInstance(serviceName string) (string, int, error) {
	instance, err := c.namingClient.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.groupName,
	})
	if err != nil {
		return "", 0, errors.Wrapf(err, "failed to discover healthy instance for service '%s'", serviceName)
	}
	if instance == nil {
		return "", 0, errors.Errorf("no healthy instance available for service '%s'", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}

// GetConfig 拉取配置中心的一份配置
func (c *Client) GetConfig(dataId string) (string, error) {
	content, err := c.configClient.GetConfig(vo.ConfigParam{DataId: dataId, Group: c.groupName})
	if err != nil {
		return "", errors.Wrapf(err, "get nacos config %s", dataId)
	}
	return content, nil
}

// ListenConfig 监听配置变更，onChange 在 SDK 的回调 goroutine 中执行
func (c *Client) ListenConfig(dataId string, onChange func(content string)) error {
	err := c.configClient.ListenConfig(vo.ConfigParam{
		DataId: dataId,
		Group:  c.groupName,
		OnChange: func(namespace, group, dataId, data string) {
			onChange(data)
		},
	})
	return errors.Wrapf(err, "listen nacos config %s", dataId)
}

// Close 关闭配置客户端；命名客户端的临时实例会在心跳停止后过期
func (c *Client) Close() {
	if c.configClient != nil {
		c.configClient.CloseClient()
	}
	if c.namingClient != nil {
		c.namingClient.CloseClient()
	}
}
