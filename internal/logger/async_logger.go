// Copyright 2025 Google LLC
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

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncLogger decouples a log caller from a possibly-slow destination (a
// rotating file behind lumberjack.Logger, which can block on compression
// or rename) by handing each write to a bounded queue drained by a single
// background goroutine. A write issued while the queue is full is dropped,
// with a warning on stderr, rather than blocking the caller that's trying
// to log.
type AsyncLogger struct {
	dst     io.Writer
	entries chan []byte
	done    chan struct{}
	once    sync.Once
}

// NewAsyncLogger starts the background goroutine draining into dst and
// returns a writer that queues up to bufSize pending writes before it
// starts dropping them.
func NewAsyncLogger(dst io.Writer, bufSize int) *AsyncLogger {
	a := &AsyncLogger{
		dst:     dst,
		entries: make(chan []byte, bufSize),
		done:    make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncLogger) drain() {
	defer close(a.done)
	for b := range a.entries {
		a.dst.Write(b)
	}
}

// Write queues a copy of p for the background writer, dropping it instead
// of blocking if the queue is already full. It never returns an error: a
// dropped log line is not something a caller can usefully act on.
func (a *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case a.entries <- cp:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting new writes, waits for the queue to drain, and
// closes dst if it supports it.
func (a *AsyncLogger) Close() error {
	a.once.Do(func() { close(a.entries) })
	<-a.done
	if c, ok := a.dst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
