// Logging setup for rx
// 日志：log/slog 接口 + zerolog 后端
package rx

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var packageLogger atomic.Pointer[slog.Logger]

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	zl := zerolog.New(output).With().Timestamp().Str("component", "rx").Logger()
	packageLogger.Store(slog.New(
		zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

// Logger 返回包级日志记录器
func Logger() *slog.Logger {
	return packageLogger.Load()
}

// SetLogger 替换包级日志记录器，nil 被忽略
func SetLogger(logger *slog.Logger) {
	if logger != nil {
		packageLogger.Store(logger)
	}
}

func errAttr(err error) slog.Attr {
	return slog.Any("error", err)
}
