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
	"fmt"
	"os"
	"strings"
)

// LogWriter is the backend a Log delegates formatted messages to.
type LogWriter interface {
	Infof(format string, args ...interface{})
	Info(args ...interface{})

	Debugf(format string, args ...interface{})
	Debug(args ...interface{})

	Warnf(format string, args ...interface{})
	Warn(args ...interface{})

	Errorf(format string, args ...interface{})
	Error(args ...interface{})

	Fatalf(format string, args ...interface{})
	Fatal(args ...interface{})

	Sync() error
	Write(p []byte) (int, error)

	ChangeLogLevel(newLevel string) error
}

// Level is a logging priority. Higher levels are more important.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelMap = map[string]Level{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
	"fatal": FatalLevel,
}

// defaultLogWriter is a dependency-free writer to stdout, used when no
// rotating-file backend has been configured (see zlogwriter).
type defaultLogWriter struct {
	logLevel Level
}

func (d *defaultLogWriter) Infof(format string, args ...interface{}) {
	if d.logLevel <= InfoLevel {
		fmt.Println(fmt.Sprintf(format, args...))
	}
}

func (d *defaultLogWriter) Info(args ...interface{}) {
	if d.logLevel <= InfoLevel {
		fmt.Println(args...)
	}
}

func (d *defaultLogWriter) Debugf(format string, args ...interface{}) {
	if d.logLevel <= DebugLevel {
		fmt.Println(fmt.Sprintf(format, args...))
	}
}

func (d *defaultLogWriter) Debug(args ...interface{}) {
	if d.logLevel <= DebugLevel {
		fmt.Println(args...)
	}
}

func (d *defaultLogWriter) Warnf(format string, args ...interface{}) {
	if d.logLevel <= WarnLevel {
		fmt.Println(fmt.Sprintf(format, args...))
	}
}

func (d *defaultLogWriter) Warn(args ...interface{}) {
	if d.logLevel <= WarnLevel {
		fmt.Println(args...)
	}
}

func (d *defaultLogWriter) Errorf(format string, args ...interface{}) {
	if d.logLevel <= ErrorLevel {
		fmt.Println(fmt.Sprintf(format, args...))
	}
}

func (d *defaultLogWriter) Error(args ...interface{}) {
	if d.logLevel <= ErrorLevel {
		fmt.Println(args...)
	}
}

func (d *defaultLogWriter) Fatalf(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (d *defaultLogWriter) Fatal(args ...interface{}) {
	fmt.Println(args...)
	os.Exit(1)
}

func (d *defaultLogWriter) Sync() error { return nil }

func (d *defaultLogWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

func (d *defaultLogWriter) ChangeLogLevel(newLevel string) error {
	level, ok := levelMap[strings.ToLower(newLevel)]
	if !ok {
		return fmt.Errorf("invalid log level: %s", newLevel)
	}
	d.logLevel = level
	return nil
}

// GetDefaultLogWriter returns the stdout-only writer used before a process
// installs a rotating-file backend.
func GetDefaultLogWriter() LogWriter {
	return &defaultLogWriter{logLevel: InfoLevel}
}
