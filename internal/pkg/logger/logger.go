// internal/pkg/logger/logger.go
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 初始化全局 zerolog Logger。
// pretty 为 true 时输出人类可读的控制台格式（开发环境），
// 否则输出 unix 时间戳的 JSON（生产环境，便于采集）。
func Init(serviceName string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = log.With().Str("service", serviceName).Logger()
}

// SetLevel 按名称设置全局日志级别，未知名称回退到 info。
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
