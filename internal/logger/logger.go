// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger wraps log/slog with the severity names and text/json
// layouts snapfs uses everywhere (TRACE/DEBUG/INFO/WARNING/ERROR/OFF rather
// than slog's own level names), plus rotation via lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/snapfs-project/snapfs/internal/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities, spaced like slog's own levels so standard comparisons
// (`>=`) keep working.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.Level(-4)
	LevelInfo  = slog.Level(0)
	LevelWarn  = slog.Level(4)
	LevelError = slog.Level(8)
	LevelOff   = slog.Level(12)
)

var severityToLevel = map[string]slog.Level{
	cfg.TRACE:   LevelTrace,
	cfg.DEBUG:   LevelDebug,
	cfg.INFO:    LevelInfo,
	cfg.WARNING: LevelWarn,
	cfg.ERROR:   LevelError,
	cfg.OFF:     LevelOff,
}

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// asyncQueueSize bounds how many pending log lines Init's AsyncLogger will
// hold for a rotating file before it starts dropping them.
const asyncQueueSize = 256

type loggerFactory struct {
	file            *lumberjack.Logger
	async           *AsyncLogger
	sysWriter       io.Writer
	level           string
	format          string
	prefix          string
	logRotateConfig cfg.LogRotateLoggingConfig
}

var (
	defaultLoggerFactory = &loggerFactory{level: cfg.INFO, format: "text", sysWriter: os.Stderr}
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevelVar(cfg.INFO), ""))
)

func programLevelVar(severity string) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(severityToLevel[severity])
	return v
}

// replaceAttr renames slog's level/message/time keys to severity/message/
// timestamp, prepends prefix to the message value, and for json emits a
// nested {"seconds":...,"nanos":...} group for the timestamp, matching the
// rest of the structured logs.
func replaceAttr(format, prefix string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			lvl, _ := a.Value.Any().(slog.Level)
			name, ok := levelNames[lvl]
			if !ok {
				name = lvl.String()
			}
			return slog.String("severity", name)
		case slog.MessageKey:
			return slog.String("message", prefix+a.Value.String())
		case slog.TimeKey:
			if format == "json" {
				t := a.Value.Time()
				return slog.Any("timestamp", slog.GroupValue(
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())),
				))
			}
			return slog.String("time", a.Value.Time().Format("2006/01/02 15:04:05.000000"))
		}
		return a
	}
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr(f.format, prefix)}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// prefixWriter writes prefix ahead of every buffer it forwards to w, i.e.
// before the whole encoded log line.
type prefixWriter struct {
	w      io.Writer
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if p.prefix == "" {
		return p.w.Write(b)
	}
	n, err := p.w.Write([]byte(p.prefix))
	if err != nil {
		return n, err
	}
	m, err := p.w.Write(b)
	return n + m, err
}

func setLoggingLevel(severity string, v *slog.LevelVar) {
	lvl, ok := severityToLevel[severity]
	if !ok {
		lvl = LevelInfo
	}
	v.Set(lvl)
}

// SetLogFormat switches the default logger's wire format between "text"
// and "json" (defaulting to json on an unrecognized value).
func SetLogFormat(format string) {
	if format != "text" {
		format = "json"
	}
	defaultLoggerFactory.format = format
	v := programLevelVar(defaultLoggerFactory.level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.sysWriter, v, ""))
}

// Init configures the default logger from a parsed LoggingConfig. Call once
// at process startup, before any snapshot or IPC request is served.
func Init(c cfg.LoggingConfig) error {
	format := c.Format
	if format == "" {
		format = "text"
	}
	defaultLoggerFactory = &loggerFactory{
		level:           c.Severity,
		format:          format,
		logRotateConfig: c.LogRotate,
	}

	var w io.Writer = os.Stderr
	if c.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   c.Filename,
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
		defaultLoggerFactory.file = lj
		// Rotation can block on rename/compress; decouple every log call
		// from that by queuing through AsyncLogger instead of writing to
		// lj directly.
		async := NewAsyncLogger(lj, asyncQueueSize)
		defaultLoggerFactory.async = async
		w = async
	}
	defaultLoggerFactory.sysWriter = w

	v := programLevelVar(c.Severity)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, v, ""))
	return nil
}

// Close drains and stops the background file writer started by Init, if
// any. Call once during shutdown, after the last log call.
func Close() error {
	if defaultLoggerFactory.async == nil {
		return nil
	}
	return defaultLoggerFactory.async.Close()
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}
