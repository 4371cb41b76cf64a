package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormAdapter routes GORM's logging into slog. SQL statements are logged at
// debug level only when verbose is set; slow queries and query errors are
// always logged as warnings.
type GormAdapter struct {
	logger        *slog.Logger
	slowThreshold time.Duration
	verbose       bool
}

// NewGormAdapter creates an adapter. A zero slowThreshold disables slow query warnings.
func NewGormAdapter(logger *slog.Logger, slowThreshold time.Duration, verbose bool) *GormAdapter {
	if logger == nil {
		logger = Logger()
	}
	return &GormAdapter{logger: logger, slowThreshold: slowThreshold, verbose: verbose}
}

// LogMode is a no-op; levels come from the slog configuration.
func (a *GormAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (a *GormAdapter) Info(ctx context.Context, msg string, data ...any) {
	a.logger.DebugContext(ctx, fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Warn(ctx context.Context, msg string, data ...any) {
	a.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Error(ctx context.Context, msg string, data ...any) {
	a.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		a.logger.WarnContext(ctx, "query error",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		sql, rows := fc()
		a.logger.WarnContext(ctx, "slow query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds(),
			"threshold", a.slowThreshold)
	case a.verbose:
		sql, rows := fc()
		a.logger.DebugContext(ctx, "sql query",
			"sql", sql,
			"rows_affected", rows,
			"duration_ms", elapsed.Milliseconds())
	}
}
