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

// Package log is the structured, contextual logging facade used throughout
// the isolator: the engine, the controllers and the adapter all log through
// it instead of the standard library's log package.
package log

import (
	"context"
	"fmt"
)

// Log wraps a LogWriter and a Formatter behind a context-aware facade.
type Log struct {
	logWriter LogWriter
	formatter Formatter
	ctx       context.Context
}

// WithCtx returns a copy of l bound to ctx, so a call-scoped context (e.g. one
// carrying a container id) can be threaded through the formatter.
func (l *Log) WithCtx(ctx context.Context) *Log {
	ret := &Log{ctx: ctx, logWriter: l.logWriter, formatter: l.formatter}
	if ctx == nil {
		ret.ctx = context.Background()
	}
	return ret
}

func (l *Log) Infof(format string, args ...interface{}) {
	l.logWriter.Info(l.formatter.Format(l.ctx, fmt.Sprintf(format, args...)))
}

func (l *Log) Info(args ...interface{}) {
	l.logWriter.Info(l.formatter.Format(l.ctx, fmt.Sprint(args...)))
}

func (l *Log) Debugf(format string, args ...interface{}) {
	l.logWriter.Debug(l.formatter.Format(l.ctx, fmt.Sprintf(format, args...)))
}

func (l *Log) Debug(args ...interface{}) {
	l.logWriter.Debug(l.formatter.Format(l.ctx, fmt.Sprint(args...)))
}

func (l *Log) Warnf(format string, args ...interface{}) {
	l.logWriter.Warn(l.formatter.Format(l.ctx, fmt.Sprintf(format, args...)))
}

func (l *Log) Warn(args ...interface{}) {
	l.logWriter.Warn(l.formatter.Format(l.ctx, fmt.Sprint(args...)))
}

func (l *Log) Errorf(format string, args ...interface{}) {
	l.logWriter.Error(l.formatter.Format(l.ctx, fmt.Sprintf(format, args...)))
}

func (l *Log) Error(args ...interface{}) {
	l.logWriter.Error(l.formatter.Format(l.ctx, fmt.Sprint(args...)))
}

func (l *Log) Fatalf(format string, args ...interface{}) {
	l.logWriter.Fatal(l.formatter.Format(l.ctx, fmt.Sprintf(format, args...)))
}

func (l *Log) Fatal(args ...interface{}) {
	l.logWriter.Fatal(l.formatter.Format(l.ctx, fmt.Sprint(args...)))
}

// New builds a Log from the given options, defaulting to the dependency-free
// stdout writer and a pass-through formatter.
func New(ops ...Option) *Log {
	l := &Log{logWriter: GetDefaultLogWriter(), formatter: NewDefaultFormatter(), ctx: context.Background()}
	for _, o := range ops {
		if o != nil {
			o.apply(l)
		}
	}
	return l
}
