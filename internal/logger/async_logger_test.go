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
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestAsyncLogger_QueuesAndFlushesOnClose(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	async := NewAsyncLogger(lj, 10)

	fmt.Fprintln(async, "message 1")
	fmt.Fprintln(async, "message 2")
	fmt.Fprintln(async, "message 3")
	require.NoError(t, async.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "message 1\nmessage 2\nmessage 3\n", string(content))
}

func TestAsyncLogger_DoubleCloseIsSafe(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	async := NewAsyncLogger(lj, 4)

	fmt.Fprintln(async, "only message")
	require.NoError(t, async.Close())
	require.NoError(t, async.Close())
}

func TestAsyncLogger_DropsWhenQueueIsFull(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	bw := &blockingWriter{started: make(chan struct{}), unblock: make(chan struct{}), real: lj}
	async := NewAsyncLogger(bw, 1)

	fmt.Fprintln(async, "first")
	<-bw.started // drain has pulled "first" off the queue and is stuck writing it

	fmt.Fprintln(async, "second") // the now-empty one-slot queue absorbs this
	n, err := async.Write([]byte("third\n"))
	require.NoError(t, err)
	require.Equal(t, len("third\n"), n) // Write never reports a drop to the caller

	close(bw.unblock)
	require.NoError(t, async.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(content))
}

// blockingWriter holds its first Write call open until unblock is closed,
// signaling on started the moment that call begins, so a test can force
// AsyncLogger's queue into a known full state without racing its drain
// goroutine.
type blockingWriter struct {
	started chan struct{}
	unblock chan struct{}
	real    io.Writer
	once    sync.Once
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	<-w.unblock
	return w.real.Write(p)
}
