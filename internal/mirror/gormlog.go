// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// gormLogger routes gorm's logging through zerolog. SQL statements are
// traced at debug level; statements slower than slowQuery are warnings.
type gormLogger struct {
	side  string
	level gormlogger.LogLevel
}

const slowQuery = 5 * time.Second

func newGormLogger(side string) gormlogger.Interface {
	return &gormLogger{side: side, level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormLogger) logger() zerolog.Logger {
	return logging.With().Str("component", "mirror").Str("side", l.side).Logger()
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		lg := l.logger()
		lg.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		lg := l.logger()
		lg.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		lg := l.logger()
		lg.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	lg := l.logger()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		lg.Debug().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("SQL error")
	case elapsed > slowQuery && l.level >= gormlogger.Warn:
		sql, rows := fc()
		lg.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Slow SQL")
	case logging.IsLevelEnabled(zerolog.TraceLevel):
		sql, rows := fc()
		lg.Trace().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("SQL")
	}
}
