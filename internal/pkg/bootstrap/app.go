// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/pkg/nacos"
	"nexus-ware/internal/pkg/tracing"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Runner 是随服务启停的后台组件，例如 Kafka 消费者。
// Start 不应阻塞，Stop 需要等待后台 goroutine 退出。
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// AppCtx 在服务启动时交给业务方，用于注册路由和后台组件
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用 Nacos 时为 nil
	Config *Config

	runners []Runner
	closers []func(ctx context.Context) error
}

// AddRunner 注册一个随服务启停的后台组件
func (a *AppCtx) AddRunner(r Runner) {
	a.runners = append(a.runners, r)
}

// OnShutdown 注册关停时执行的清理函数，按注册的逆序执行
func (a *AppCtx) OnShutdown(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// Setup 注册 HTTP 路由、消费者和清理函数，返回错误时服务不会启动
	Setup func(appCtx *AppCtx) error
}

// StartService 封装了通用的启动和优雅关停逻辑，阻塞直到收到 SIGINT/SIGTERM。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	ctx := context.Background()
	log := logger.Ctx(ctx)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. Nacos 注册（可选）
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		namingClient = nacosConfigClient
		if namingClient == nil {
			namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.Addrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize nacos client")
			}
		}
		if ip, err = getOutboundIP(); err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 业务组装
	mux := http.NewServeMux()
	appCtx := &AppCtx{Mux: mux, Nacos: namingClient, Config: cfg}
	if info.Setup != nil {
		if err := info.Setup(appCtx); err != nil {
			log.Fatal().Err(err).Msg("service setup failed")
		}
	}

	// 4. 启动后台组件
	runCtx, cancelRun := context.WithCancel(ctx)
	for _, r := range appCtx.runners {
		if err := r.Start(runCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to start runner")
		}
	}

	// 5. HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Str("service", info.ServiceName).Msg("Shutting down service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// a. 先从注册中心摘除，避免新流量进入
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}

	// b. 停止 HTTP 服务器
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	// c. 并发停止所有后台组件
	cancelRun()
	var g errgroup.Group
	for _, r := range appCtx.runners {
		r := r
		g.Go(func() error {
			r.Stop(shutdownCtx)
			return nil
		})
	}
	_ = g.Wait()

	// d. 业务注册的清理函数，逆序执行
	for i := len(appCtx.closers) - 1; i >= 0; i-- {
		if err := appCtx.closers[i](shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error running shutdown hook")
		}
	}

	if namingClient != nil {
		namingClient.Close()
	}

	// e. 最后关闭 Tracer Provider，确保缓冲的 span 发送出去
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	log.Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
}

// getOutboundIP 通过一次 UDP "连接" 获取本机对外的 IP，不会真正发送数据
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "dial udp")
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.New("unexpected local address type")
	}
	return addr.IP.String(), nil
}
