package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/nacos"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的完整配置快照。
// 加载顺序：本地 yaml 文件 -> Nacos 配置中心 -> 环境变量。
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`
	Infra   InfraConfig   `yaml:"infra"`
	Ware    WareConfig    `yaml:"ware"`
}

type ServiceConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MySQLConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxOpen  int    `yaml:"maxOpen"`
	MaxIdle  int    `yaml:"maxIdle"`
}

// FormatDSN 优先使用显式 DSN，否则由各字段拼装
func (m MySQLConfig) FormatDSN() string {
	if m.DSN != "" {
		return m.DSN
	}
	cfg := mysql.NewConfig()
	cfg.User = m.User
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", m.Host, m.Port)
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type ZookeeperConfig struct {
	Servers        string        `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	LockRoot       string        `yaml:"lockRoot"`
}

type NacosConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addrs        string `yaml:"addrs"`
	Namespace    string `yaml:"namespace"`
	Group        string `yaml:"group"`
	ConfigDataID string `yaml:"configDataId"`
}

// WareConfig 是库存锁定/解锁相关的业务配置
type WareConfig struct {
	LedgerDriver       string         `yaml:"ledgerDriver"` // mysql | redis | memory
	LockDriver         string         `yaml:"lockDriver"`   // zookeeper | redis | local
	LockTTL            time.Duration  `yaml:"lockTTL"`
	OrderLookupTimeout time.Duration  `yaml:"orderLookupTimeout"`
	ReleasePolicy      string         `yaml:"releasePolicy"`
	MaxRetries         int            `yaml:"maxRetries"`
	Topics             TopicsConfig   `yaml:"topics"`
	Services           ServicesConfig `yaml:"services"`
}

type TopicsConfig struct {
	StockLocked       string `yaml:"stockLocked"`
	StockLockedDelay  string `yaml:"stockLockedDelay"`
	ReleaseCheck      string `yaml:"releaseCheck"`
	ReleaseCheckDelay string `yaml:"releaseCheckDelay"`
	RetryDelay        string `yaml:"retryDelay"`
}

// RemoteService 描述一个下游服务：优先通过 Nacos 发现，URL 为静态兜底
type RemoteService struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type ServicesConfig struct {
	Order   RemoteService `yaml:"order"`
	Catalog RemoteService `yaml:"catalog"`
}

// DefaultConfig 返回开发环境可直接运行的默认值
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{Name: "ware-service", Port: 8090},
		Log:     LogConfig{Level: "info"},
		Infra: InfraConfig{
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces", SampleRatio: 1},
			Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}},
			MySQL:     MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "gulimall_wms", MaxOpen: 50, MaxIdle: 10},
			Redis:     RedisConfig{Addrs: []string{"localhost:6379"}},
			Zookeeper: ZookeeperConfig{Servers: "localhost:2181", SessionTimeout: 5 * time.Second},
			Nacos:     NacosConfig{Addrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		Ware: WareConfig{
			LedgerDriver:       "mysql",
			LockDriver:         "zookeeper",
			LockTTL:            10 * time.Second,
			OrderLookupTimeout: 3 * time.Second,
			ReleasePolicy:      `!found || status == "CANCELLED"`,
			MaxRetries:         3,
			Topics: TopicsConfig{
				StockLocked:       "stock-locked",
				StockLockedDelay:  "delay_topic_10m",
				ReleaseCheck:      "stock-release-check",
				ReleaseCheckDelay: "delay_topic_10m",
				RetryDelay:        "delay_topic_1m",
			},
			Services: ServicesConfig{
				Order:   RemoteService{Name: "order-service", URL: "http://localhost:8081"},
				Catalog: RemoteService{Name: "product-service", URL: "http://localhost:8082"},
			},
		},
	}
}

var (
	currentConfig     atomic.Pointer[Config]
	nacosConfigClient *nacos.Client
)

// GetCurrentConfig 返回当前生效的配置快照，未初始化时返回默认值
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

// SetCurrentConfig 替换当前配置
func SetCurrentConfig(cfg *Config) {
	currentConfig.Store(cfg)
}

// Init 加载配置：CONFIG_FILE 指向的 yaml，启用时叠加 Nacos 配置并监听变更，最后应用环境变量覆盖。
func Init() (*Config, error) {
	cfg, err := Load(getEnv("CONFIG_FILE", "configs/ware-service.yaml"))
	if err != nil {
		return nil, err
	}

	if cfg.Infra.Nacos.Enabled && cfg.Infra.Nacos.ConfigDataID != "" {
		client, err := nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return nil, err
		}
		nacosConfigClient = client

		content, err := client.GetConfig(cfg.Infra.Nacos.ConfigDataID)
		if err != nil {
			return nil, err
		}
		if cfg, err = Overlay(cfg, []byte(content)); err != nil {
			return nil, err
		}
		applyEnv(cfg)

		base := *cfg
		err = client.ListenConfig(cfg.Infra.Nacos.ConfigDataID, func(content string) {
			next, err := Overlay(&base, []byte(content))
			if err != nil {
				logger.Ctx(context.Background()).Error().Err(err).Msg("Ignoring invalid config pushed by Nacos")
				return
			}
			applyEnv(next)
			SetCurrentConfig(next)
			logger.Ctx(context.Background()).Info().Msg("🔄 Config reloaded from Nacos")
		})
		if err != nil {
			return nil, err
		}
	}

	SetCurrentConfig(cfg)
	return cfg, nil
}

// Load 从 yaml 文件加载配置，文件不存在时使用默认值，最后应用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	case os.IsNotExist(err):
		// 没有配置文件时完全依赖默认值和环境变量
	default:
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	applyEnv(cfg)
	return cfg, nil
}

// Overlay 将一份 yaml 叠加到 base 的副本上，base 本身不变
func Overlay(base *Config, data []byte) (*Config, error) {
	next := *base
	if err := yaml.Unmarshal(data, &next); err != nil {
		return nil, errors.Wrap(err, "parse overlay config")
	}
	return &next, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Service.Port = port
		}
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	if v := os.Getenv("REDIS_ADDRS"); v != "" {
		cfg.Infra.Redis.Addrs = strings.Split(v, ",")
	}
	cfg.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)
	cfg.Infra.Nacos.Addrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.Addrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if v := os.Getenv("NACOS_ENABLED"); v != "" {
		cfg.Infra.Nacos.Enabled = v == "true"
	}
	cfg.Infra.Nacos.ConfigDataID = getEnv("NACOS_CONFIG_DATA_ID", cfg.Infra.Nacos.ConfigDataID)
	cfg.Ware.LedgerDriver = getEnv("WARE_LEDGER_DRIVER", cfg.Ware.LedgerDriver)
	cfg.Ware.LockDriver = getEnv("WARE_LOCK_DRIVER", cfg.Ware.LockDriver)
}

// getEnv 从环境变量中读取配置，未设置时返回 fallback
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
