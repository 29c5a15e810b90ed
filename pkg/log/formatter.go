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

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// Formatter turns a raw message plus a context into the text actually sent
// to a LogWriter.
type Formatter interface {
	Format(context.Context, string) string
}

type defaultFormatter struct{}

func (f *defaultFormatter) Format(_ context.Context, msg string) string {
	return msg
}

// NewDefaultFormatter returns a pass-through formatter.
func NewDefaultFormatter() Formatter {
	return &defaultFormatter{}
}

// containerIDFormatter prefixes log lines with the container id carried on
// the context, so engine/controller logs for the same container interleave
// legibly.
type containerIDFormatter struct{}

// NewContainerIDFormatter returns a formatter that looks up a container id
// stashed on the context (see containerid.WithContext) and prefixes it.
func NewContainerIDFormatter() Formatter {
	return &containerIDFormatter{}
}

func (f *containerIDFormatter) Format(ctx context.Context, msg string) string {
	if ctx == nil {
		return msg
	}
	cid, ok := containerid.FromContext(ctx)
	if !ok {
		return msg
	}
	return "[" + cid.String() + "] " + msg
}
