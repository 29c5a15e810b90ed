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

// Package zlogwriter is a zap-backed log.LogWriter with rotating file output,
// for long-running isolator processes where plain stdout logging isn't enough.
package zlogwriter

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/secretflow/cgroups2-isolator/pkg/log"
)

// Writer is the zap.SugaredLogger implementation of log.LogWriter.
type Writer struct {
	*zap.SugaredLogger
	atomicLevel zap.AtomicLevel
}

// InstallPFlags registers --log.level, --log.path, --log.file_size and
// --log.max_files on flagset, returning the Config they populate.
func InstallPFlags(flagset *pflag.FlagSet) *log.Config {
	if flagset == nil {
		flagset = pflag.CommandLine
	}

	var c log.Config
	flagset.StringVar(&c.Level, "log.level", "INFO", "logs of this level or above will be output")
	flagset.StringVar(&c.Path, "log.path", "", "also output logs to this file, empty means only output to stdout")
	flagset.IntVar(&c.MaxFileSizeMB, "log.file_size", 512, "maximum size in megabytes of the log file before it gets rotated")
	flagset.IntVar(&c.MaxFiles, "log.max_files", 10, "maximum number of old log files to retain")
	return &c
}

// New builds a rotating-file + stdout Writer from config.
func New(config *log.Config) (*Writer, error) {
	if config == nil {
		config = &log.Config{Level: "Debug"}
	}
	atomicLevel := zap.NewAtomicLevel()

	logger, err := newZapLogger(config, &zapcore.EncoderConfig{
		ConsoleSeparator: " ",

		LevelKey:   "Level",
		TimeKey:    "Timestamp",
		MessageKey: "Message",
		CallerKey:  "Caller",

		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
		},
	}, atomicLevel)
	if err != nil {
		return nil, err
	}

	return &Writer{logger, atomicLevel}, nil
}

func newZapLogger(config *log.Config, encCfg *zapcore.EncoderConfig, atomicLevel zap.AtomicLevel) (*zap.SugaredLogger, error) {
	syncer := zapcore.AddSync(os.Stdout)
	if config.Path != "" {
		syncer = zapcore.NewMultiWriteSyncer(syncer, zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxFileSizeMB,
			MaxBackups: config.MaxFiles,
		}))
	}

	if err := changeLogLevel(atomicLevel, config.Level); err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(*encCfg), syncer, atomicLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(), nil
}

func changeLogLevel(atomicLevel zap.AtomicLevel, newLevel string) error {
	var level zapcore.Level
	if err := level.Set(newLevel); err != nil {
		return err
	}
	atomicLevel.SetLevel(level)
	return nil
}

// ChangeLogLevel changes the log level on the fly. Choose from DEBUG, INFO,
// WARN, ERROR, FATAL.
func (w *Writer) ChangeLogLevel(newLevel string) error {
	return changeLogLevel(w.atomicLevel, newLevel)
}

// Fatalf logs at fatal and exits, matching log.LogWriter's contract rather
// than zap's panic-on-DPanic default.
func (w *Writer) Fatalf(format string, args ...interface{}) {
	w.SugaredLogger.Fatalf(format, args...)
}

func (w *Writer) Fatal(args ...interface{}) {
	w.SugaredLogger.Fatal(args...)
}

// Sync flushes any buffered log entries.
func (w *Writer) Sync() error {
	return w.SugaredLogger.Sync()
}

// Write implements io.Writer so the writer can double as e.g. a stdlib log
// output target.
func (w *Writer) Write(p []byte) (int, error) {
	w.SugaredLogger.Info(string(p))
	return len(p), nil
}
