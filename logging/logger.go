// Copyright (c) 2019 The Gnet Authors. All rights reserved.
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

// Package logging provides the structured logger used across basrv,
// backed by zap with optional lumberjack file rotation.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging interface used throughout basrv.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Flusher flushes buffered log entries; call before process exit.
type Flusher func() error

var (
	defaultLoggerOnce sync.Once
	defaultLogger     Logger
	defaultFlusher    Flusher
)

// prefixEncoder wraps a zapcore.Encoder and prepends a fixed prefix to every
// encoded entry.
type prefixEncoder struct {
	zapcore.Encoder

	prefix  string
	bufPool buffer.Pool
}

func (e *prefixEncoder) Clone() zapcore.Encoder {
	return &prefixEncoder{Encoder: e.Encoder.Clone(), prefix: e.prefix, bufPool: e.bufPool}
}

func (e *prefixEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := e.bufPool.Get()

	buf.AppendString(e.prefix)
	buf.AppendString(" ")

	logEntry, err := e.Encoder.EncodeEntry(entry, fields)
	if err != nil {
		return nil, err
	}

	if _, err := buf.Write(logEntry.Bytes()); err != nil {
		return nil, err
	}

	return buf, nil
}

func getEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func getDevEncoder() zapcore.Encoder {
	cfg := getEncoderConfig()
	return &prefixEncoder{Encoder: zapcore.NewConsoleEncoder(cfg), prefix: "[basrv]", bufPool: buffer.NewPool()}
}

func getProdEncoder() zapcore.Encoder {
	cfg := getEncoderConfig()
	return &prefixEncoder{Encoder: zapcore.NewJSONEncoder(cfg), prefix: "[basrv]", bufPool: buffer.NewPool()}
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("BASRV_LOGGING_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// CreateLoggerAsLocalFile builds a Logger and Flusher pair that writes JSON-encoded
// entries to a rotated local file via lumberjack.
func CreateLoggerAsLocalFile(path string, level zapcore.Level) (Logger, Flusher, error) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	core := zapcore.NewCore(getProdEncoder(), zapcore.AddSync(rotator), level)
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{zl.Sugar()}, func() error { return zl.Sync() }, nil
}

func newDefaultLogger() (Logger, Flusher) {
	level := levelFromEnv()
	var core zapcore.Core
	if file := os.Getenv("BASRV_LOGGING_FILE"); file != "" {
		rotator := &lumberjack.Logger{Filename: file, MaxSize: 100, MaxBackups: 5, MaxAge: 28, Compress: true}
		core = zapcore.NewCore(getProdEncoder(), zapcore.AddSync(rotator), level)
	} else {
		core = zapcore.NewCore(getDevEncoder(), zapcore.Lock(os.Stdout), level)
	}
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{zl.Sugar()}, func() error { return zl.Sync() }
}

// SetDefaultLoggerAndFlusher installs a custom default logger, replacing the lazily
// constructed one. Safe to call once, before the server starts.
func SetDefaultLoggerAndFlusher(l Logger, f Flusher) {
	defaultLoggerOnce.Do(func() {})
	defaultLogger = l
	defaultFlusher = f
}

// GetDefaultLogger lazily constructs (once) and returns the process-wide default logger.
func GetDefaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger, defaultFlusher = newDefaultLogger()
		}
	})
	return defaultLogger
}

// GetDefaultFlusher returns the flusher paired with the default logger.
func GetDefaultFlusher() Flusher {
	GetDefaultLogger()
	return defaultFlusher
}

// Cleanup flushes the default logger; call it from main before exit.
func Cleanup() {
	if f := GetDefaultFlusher(); f != nil {
		_ = f()
	}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debugf(format string, args ...interface{}) { z.s.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...interface{})  { z.s.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...interface{})  { z.s.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...interface{}) { z.s.Errorf(format, args...) }
func (z *zapLogger) Fatalf(format string, args ...interface{}) { z.s.Fatalf(format, args...) }

// Debugf logs at debug level using the default logger.
func Debugf(format string, args ...interface{}) { GetDefaultLogger().Debugf(format, args...) }

// Infof logs at info level using the default logger.
func Infof(format string, args ...interface{}) { GetDefaultLogger().Infof(format, args...) }

// Warnf logs at warn level using the default logger.
func Warnf(format string, args ...interface{}) { GetDefaultLogger().Warnf(format, args...) }

// Errorf logs at error level using the default logger.
func Errorf(format string, args ...interface{}) { GetDefaultLogger().Errorf(format, args...) }
