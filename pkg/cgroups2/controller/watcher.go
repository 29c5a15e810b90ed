// Copyright 2024 Ant Group Co., Ltd.
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

package controller

import (
	"sync"

	"github.com/armon/circbuf"
	"github.com/fsnotify/fsnotify"
	"gitlab.com/jonas.jasas/condchan"

	"github.com/secretflow/cgroups2-isolator/pkg/log"
)

// diagnosticRingSize bounds, in bytes, the ring buffer in which an
// eventWatcher records the path of its events file once for every observed
// write; it is purely diagnostic and nothing in this package reads it back.
const diagnosticRingSize = 4096

// violationFunc inspects the event counters before and after a write and
// reports the Limitation to deliver, if any.
type violationFunc func(prev, cur map[string]int64) (Limitation, bool)

// eventWatcher is the independently owned actor, referenced in the design
// notes, that watches one control file (e.g. memory.events, pids.events)
// for writes and resolves a single Limitation the first time its
// violationFunc reports one. It uses an internal spin lock (via sync.Mutex
// guarding a condchan.CondChan) over its small resolved/result/closed/prev
// state because contention here is negligible next to the cost of
// process-level serialization.
type eventWatcher struct {
	mu   sync.Mutex
	cond *condchan.CondChan

	resolved  bool
	result    Limitation
	closed    bool
	notifyErr error

	fsWatcher *fsnotify.Watcher
	ring      *circbuf.Buffer
	prev      map[string]int64
}

func newEventWatcher(nonLeaf, file, controllerName string, violation violationFunc) (*eventWatcher, error) {
	path := controlFile(nonLeaf, file)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	ring, err := circbuf.NewBuffer(diagnosticRingSize)
	if err != nil {
		fw.Close()
		return nil, err
	}

	prev, err := readEventsFile(path)
	if err != nil {
		prev = map[string]int64{}
	}

	w := &eventWatcher{fsWatcher: fw, ring: ring, prev: prev}
	w.cond = condchan.New(&w.mu)

	go w.run(path, controllerName, violation)
	return w, nil
}

func (w *eventWatcher) run(path, controllerName string, violation violationFunc) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.onWrite(path, violation)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warnf("error watching %q: %v", path, err)
		}
	}
}

func (w *eventWatcher) onWrite(path string, violation violationFunc) {
	cur, err := readEventsFile(path)
	if err != nil {
		return
	}

	w.ring.Write([]byte(path + "\n"))

	w.mu.Lock()
	if w.resolved {
		w.prev = cur
		w.mu.Unlock()
		return
	}
	prev := w.prev
	w.prev = cur
	limitation, hit := violation(prev, cur)
	if hit {
		w.resolved = true
		w.result = limitation
	}
	w.mu.Unlock()

	if hit {
		w.cond.Broadcast()
	}
}

// Subscribe returns a channel that receives the single resolved Limitation
// and is then closed; if the watcher is closed first, the channel is
// closed without a value (the container's lifetime ended with no
// violation observed).
func (w *eventWatcher) Subscribe() <-chan Limitation {
	ch := make(chan Limitation, 1)
	go func() {
		defer close(ch)
		w.mu.Lock()
		for !w.resolved && !w.closed {
			w.cond.Select(func(signal <-chan struct{}) {
				<-signal
			})
		}
		resolved, result := w.resolved, w.result
		w.mu.Unlock()

		if resolved {
			ch <- result
		}
	}()
	return ch
}

// Close tears down the fsnotify watch and wakes any pending Subscribe
// goroutines so they exit without a value.
func (w *eventWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
	w.fsWatcher.Close()
}
