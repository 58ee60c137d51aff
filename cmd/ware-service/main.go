// cmd/ware-service/main.go
package main

import (
	"context"
	"os"

	"nexus-ware/internal/pkg/bootstrap"
	"nexus-ware/internal/pkg/httpclient"
	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/mq"
	"nexus-ware/internal/pkg/redis"
	"nexus-ware/internal/pkg/zookeeper"
	"nexus-ware/internal/service/ware/application"
	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/domain/port"
	"nexus-ware/internal/service/ware/infrastructure"
	"nexus-ware/internal/service/ware/infrastructure/adapter"
	"nexus-ware/internal/service/ware/infrastructure/rule"
	"nexus-ware/internal/service/ware/interfaces"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const serviceName = "ware-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		logger.Init(serviceName, "info")
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Service.Name, cfg.Log.Level)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		Setup:       setup,
	})
}

func setup(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config
	ctx := context.Background()
	tracer := otel.Tracer(serviceName)

	// 1. 基础设施
	var (
		db          *gorm.DB
		redisClient *redis.Client
		err         error
	)
	needsMySQL := cfg.Ware.LedgerDriver != "memory"
	if needsMySQL {
		db, err = infrastructure.OpenMySQL(cfg.Infra.MySQL.FormatDSN(), cfg.Infra.MySQL.MaxOpen, cfg.Infra.MySQL.MaxIdle, os.Getenv("DB_AUTO_MIGRATE") == "true")
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	if cfg.Ware.LedgerDriver == "redis" || cfg.Ware.LockDriver == "redis" {
		redisClient, err = redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error { return redisClient.Close() })
	}

	// 2. 台账与工作单
	var (
		ledger  domain.Ledger
		journal domain.Journal
	)
	switch cfg.Ware.LedgerDriver {
	case "mysql":
		ledger = infrastructure.NewGormLedger(db)
	case "redis":
		if ledger, err = infrastructure.NewRedisLedger(redisClient); err != nil {
			return err
		}
	case "memory":
		ledger = infrastructure.NewMemoryLedger()
	default:
		return errors.Errorf("unknown ledger driver %q", cfg.Ware.LedgerDriver)
	}
	if db != nil {
		journal = infrastructure.NewGormJournal(db)
	} else {
		journal = infrastructure.NewMemoryJournal()
	}

	// 3. 订单级互斥锁
	var locker port.Locker
	switch cfg.Ware.LockDriver {
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return err
		}
		appCtx.OnShutdown(func(context.Context) error { conn.Close(); return nil })
		locker = adapter.NewZKLocker(conn, cfg.Infra.Zookeeper.LockRoot)
	case "redis":
		locker = adapter.NewRedisLocker(redisClient.GetClient(), cfg.Ware.LockTTL)
	case "local":
		locker = adapter.NewLocalLocker()
	default:
		return errors.Errorf("unknown lock driver %q", cfg.Ware.LockDriver)
	}

	// 4. 下游服务：启用 Nacos 时走服务发现，静态地址兜底
	static := httpclient.StaticResolver{
		cfg.Ware.Services.Order.Name:   cfg.Ware.Services.Order.URL,
		cfg.Ware.Services.Catalog.Name: cfg.Ware.Services.Catalog.URL,
	}
	var resolver httpclient.Resolver = static
	if appCtx.Nacos != nil {
		resolver = httpclient.NewNacosResolver(appCtx.Nacos, static)
	}
	client := httpclient.NewClient(tracer, resolver)
	orders := adapter.NewOrderHTTPAdapter(client, cfg.Ware.Services.Order.Name)
	catalog := adapter.NewCatalogHTTPAdapter(client, cfg.Ware.Services.Catalog.Name)

	// 5. Kafka 生产者：一个不绑定 Topic 的 writer 供事件和失败处理共用
	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, "")
	appCtx.OnShutdown(func(context.Context) error { return writer.Close() })
	topics := cfg.Ware.Topics
	events := adapter.NewStockEventKafkaAdapter(writer, adapter.StockEventTopics{
		StockLocked:       topics.StockLocked,
		StockLockedDelay:  topics.StockLockedDelay,
		ReleaseCheck:      topics.ReleaseCheck,
		ReleaseCheckDelay: topics.ReleaseCheckDelay,
	})

	// 6. 应用服务
	policy, err := rule.NewReloadingReleasePolicy(func() string {
		return bootstrap.GetCurrentConfig().Ware.ReleasePolicy
	})
	if err != nil {
		return err
	}
	coordinator := application.NewReservationCoordinator(ledger, journal, events, events, tracer)
	reconciler := application.NewReconciler(ledger, journal, orders, policy, locker, cfg.Ware.OrderLookupTimeout, tracer)
	stock := application.NewStockService(ledger, journal, catalog, tracer)

	// 7. 驱动适配器
	interfaces.NewWareHandler(coordinator, reconciler, stock).RegisterRoutes(appCtx.Mux)

	failureHandler := mq.NewFailureHandler(writer, topics.RetryDelay, cfg.Ware.MaxRetries, interfaces.IsRetryable)
	brokers := cfg.Infra.Kafka.Brokers
	groupID := cfg.Service.Name + "-group"
	appCtx.AddRunner(interfaces.NewStockLockedConsumer(
		mq.NewKafkaReader(brokers, topics.StockLocked, groupID), reconciler, failureHandler))
	appCtx.AddRunner(interfaces.NewReleaseCheckConsumer(
		mq.NewKafkaReader(brokers, topics.ReleaseCheck, groupID), reconciler, failureHandler))
	for _, topic := range []string{topics.StockLocked, topics.ReleaseCheck} {
		appCtx.AddRunner(interfaces.NewDltConsumerAdapter(
			mq.NewKafkaReader(brokers, topic+mq.DLTSuffix, groupID+"-dlt")))
	}

	logger.Ctx(ctx).Info().
		Str("ledger", cfg.Ware.LedgerDriver).
		Str("lock", cfg.Ware.LockDriver).
		Bool("nacos", appCtx.Nacos != nil).
		Msg("✅ Ware service assembled.")
	return nil
}
