package logging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedisLogger routes go-redis internal messages through zerolog.
// Install it with redis.SetLogger.
type RedisLogger struct {
	level zerolog.Level
}

func NewRedisLogger(level zerolog.Level) *RedisLogger {
	return &RedisLogger{level: level}
}

func (l *RedisLogger) Printf(ctx context.Context, format string, v ...any) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}
	logger.WithLevel(l.level).Str("component", "redis").Msg(fmt.Sprintf(format, v...))
}
