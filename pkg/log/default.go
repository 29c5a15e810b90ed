// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"fmt"
)

var defaultLogger *Log

func init() {
	defaultLogger = &Log{
		logWriter: GetDefaultLogWriter(),
		ctx:       context.Background(),
		formatter: NewDefaultFormatter(),
	}
}

// Setup replaces the package-level default logger, e.g. with a
// zlogwriter-backed one once the process's flags have been parsed.
func Setup(ops ...Option) {
	defaultLogger = New(ops...)
}

func DefaultLogger() *Log {
	return defaultLogger
}

func WithCtx(ctx context.Context) *Log {
	return defaultLogger.WithCtx(ctx)
}

func Infof(format string, args ...interface{}) {
	defaultLogger.logWriter.Info(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprintf(format, args...)))
}

func Info(args ...interface{}) {
	defaultLogger.logWriter.Info(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprint(args...)))
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.logWriter.Debug(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprintf(format, args...)))
}

func Debug(args ...interface{}) {
	defaultLogger.logWriter.Debug(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprint(args...)))
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.logWriter.Warn(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprintf(format, args...)))
}

func Warn(args ...interface{}) {
	defaultLogger.logWriter.Warn(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprint(args...)))
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.logWriter.Error(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprintf(format, args...)))
}

func Error(args ...interface{}) {
	defaultLogger.logWriter.Error(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprint(args...)))
}

func Fatalf(format string, args ...interface{}) {
	defaultLogger.logWriter.Fatal(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprintf(format, args...)))
}

func Fatal(args ...interface{}) {
	defaultLogger.logWriter.Fatal(defaultLogger.formatter.Format(defaultLogger.ctx, fmt.Sprint(args...)))
}

func Write(p []byte) (int, error) {
	return defaultLogger.logWriter.Write(p)
}

func Sync() error {
	return defaultLogger.logWriter.Sync()
}
