// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 设置全局 logger：Unix 时间戳、服务名字段和日志级别。
// level 解析失败时回退到 info。
func Init(serviceName, level string) {
	InitWithWriter(os.Stdout, serviceName, level)
}

// InitWithWriter 与 Init 相同，但允许指定输出，测试中用来捕获日志。
func InitWithWriter(w io.Writer, serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回一个带有 trace_id / span_id 的 logger。
// ctx 中没有有效 span 时直接返回全局 logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zlog.Logger
	if ctx == nil {
		return &l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &l
	}
	l = l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
