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

// Option configures a Log built with New.
type Option interface {
	apply(*Log)
}

type optionFunc func(*Log)

func (f optionFunc) apply(l *Log) { f(l) }

// SetWriter overrides the LogWriter backend, e.g. a zap-backed rotating
// file writer instead of the dependency-free stdout default.
func SetWriter(w LogWriter) Option {
	return optionFunc(func(l *Log) {
		if w != nil {
			l.logWriter = w
		}
	})
}

// SetFormatter overrides the message formatter.
func SetFormatter(f Formatter) Option {
	return optionFunc(func(l *Log) {
		if f != nil {
			l.formatter = f
		}
	})
}
