package postgres

import (
	"context"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	defaultMaxLoggedParamLength = 256
	defaultSlowThreshold        = 200 * time.Millisecond
)

// zapGormLogger forwards gorm logs to the shared zap logger and keeps post
// bodies out of SQL logs.
type zapGormLogger struct {
	logger               logSDK.Logger
	level                gormLogger.LogLevel
	slowThreshold        time.Duration
	maxLoggedParamLength int
}

// NewGormLogger wraps logger as a gorm logger.
func NewGormLogger(logger logSDK.Logger, level gormLogger.LogLevel) gormLogger.Interface {
	return &zapGormLogger{
		logger:               logger,
		level:                level,
		slowThreshold:        defaultSlowThreshold,
		maxLoggedParamLength: defaultMaxLoggedParamLength,
	}
}

// LogMode returns a copy of the logger with the given level.
func (l *zapGormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Info {
		l.logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *zapGormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormLogger.Error {
		l.logger.Error(fmt.Sprintf(msg, args...))
	}
}

// Trace logs a finished statement. Record-not-found is expected on lookups
// and is never reported as an error.
func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormLogger.Error && !isRecordNotFound(err):
		sql, rows := fc()
		l.logger.Error("gorm query", zap.Error(err), zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case elapsed > l.slowThreshold && l.level >= gormLogger.Warn:
		sql, rows := fc()
		l.logger.Warn("gorm slow query", zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormLogger.Info:
		sql, rows := fc()
		l.logger.Debug("gorm query", zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}

// ParamsFilter truncates oversized parameter values before gorm renders SQL.
func (l *zapGormLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	return sql, sanitizeLoggedSQLParams(l.maxLoggedParamLength, params...)
}

// sanitizeLoggedSQLParams applies sanitizeLoggedSQLParam to every param.
func sanitizeLoggedSQLParams(maxLoggedParamLength int, params ...any) []any {
	if len(params) == 0 {
		return params
	}

	filtered := make([]any, len(params))
	for idx, param := range params {
		filtered[idx] = sanitizeLoggedSQLParam(param, maxLoggedParamLength)
	}
	return filtered
}

// sanitizeLoggedSQLParam converts oversized parameter values into compact log-safe summaries.
func sanitizeLoggedSQLParam(param any, maxLoggedParamLength int) any {
	switch value := param.(type) {
	case string:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<string:len=%d,truncated>", len(value))
		}
		return value
	case *string:
		if value == nil {
			return value
		}
		return sanitizeLoggedSQLParam(*value, maxLoggedParamLength)
	case []byte:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<bytes:len=%d,truncated>", len(value))
		}
		return value
	default:
		return param
	}
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
