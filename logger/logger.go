/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides leveled logging for fpcql.
// The engine logs through the Logger interface; backends are a plain writer,
// a discarding logger and a zap bridge.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level defines log levels
type Level int32

const (
	// DEBUG state transitions, stale notifications
	DEBUG Level = iota
	// INFO query lifecycle
	INFO
	// WARN degraded but running
	WARN
	// ERROR query failures, recovered panics
	ERROR
	// OFF disables logging
	OFF
)

// String returns string representation of log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case OFF:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Logger interface defines basic methods for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// SetLevel sets the minimum level that is written
	SetLevel(level Level)
}

// writerLogger writes one timestamped line per entry
type writerLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   *log.Logger
}

// NewLogger creates a logger writing to output.
//
//	log := logger.NewLogger(logger.INFO, os.Stderr)
//	log.Info("query %s started", name)
func NewLogger(level Level, output io.Writer) Logger {
	l := &writerLogger{out: log.New(output, "", 0)}
	l.level.Store(int32(level))
	return l
}

func (l *writerLogger) Debug(format string, args ...interface{}) { l.write(DEBUG, format, args) }
func (l *writerLogger) Info(format string, args ...interface{})  { l.write(INFO, format, args) }
func (l *writerLogger) Warn(format string, args ...interface{})  { l.write(WARN, format, args) }
func (l *writerLogger) Error(format string, args ...interface{}) { l.write(ERROR, format, args) }

func (l *writerLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *writerLogger) write(level Level, format string, args []interface{}) {
	min := Level(l.level.Load())
	if min == OFF || level < min {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, fmt.Sprintf(format, args...))
	l.mu.Lock()
	l.out.Println(line)
	l.mu.Unlock()
}

// discardLogger drops everything
type discardLogger struct{}

// NewDiscardLogger creates a logger that discards all logs
func NewDiscardLogger() Logger {
	return discardLogger{}
}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) SetLevel(Level)               {}

type holder struct{ Logger }

var defaultInstance atomic.Value

func init() {
	defaultInstance.Store(holder{NewLogger(INFO, os.Stdout)})
}

// SetDefault sets the global default logger
func SetDefault(l Logger) {
	if l == nil {
		l = NewDiscardLogger()
	}
	defaultInstance.Store(holder{l})
}

// GetDefault gets the global default logger
func GetDefault() Logger {
	return defaultInstance.Load().(holder).Logger
}

// Debug uses the default logger
func Debug(format string, args ...interface{}) { GetDefault().Debug(format, args...) }

// Info uses the default logger
func Info(format string, args ...interface{}) { GetDefault().Info(format, args...) }

// Warn uses the default logger
func Warn(format string, args ...interface{}) { GetDefault().Warn(format, args...) }

// Error uses the default logger
func Error(format string, args ...interface{}) { GetDefault().Error(format, args...) }
