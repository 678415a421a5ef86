// Copyright 2023 Google Inc. All Rights Reserved.
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

package ipc

import (
	"encoding/gob"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/fsserver"
	"github.com/snapfs-project/snapfs/internal/logger"
	"github.com/snapfs-project/snapfs/internal/metrics"
)

// Listener serves fsserver requests over a unix domain socket, one
// connection and one request at a time, matching the
// single-threaded cooperative model: there is no goroutine-per-connection
// fan-out here.
type Listener struct {
	ln  net.Listener
	srv *fsserver.Server
	met *metrics.Handle
}

// Listen removes any stale socket file at path and starts listening. met
// may be nil, in which case requests are served unmetered (used by tests).
func Listen(path string, srv *fsserver.Server, met *metrics.Handle) (*Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, srv: srv, met: met}, nil
}

// Addr returns the socket path being served.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts and fully services connections until Close is called or
// an unexpected accept error occurs.
func (l *Listener) Serve() error {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		l.serveConn(conn)
	}
}

func (l *Listener) serveConn(conn net.Conn) {
	defer conn.Close()

	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(requestTimeout))
		var req Request
		if err := dec.Decode(&req); err != nil {
			if err != io.EOF {
				logger.Warnf("ipc: decode request: %v", err)
			}
			return
		}

		start := time.Now()
		reply := l.dispatch(req)
		if l.met != nil {
			l.met.RecordOp(opName(req.Op), start, reply.asError())
		}
		if err := enc.Encode(&reply); err != nil {
			logger.Warnf("ipc: encode reply: %v", err)
			return
		}
	}
}

func (l *Listener) dispatch(req Request) Reply {
	switch req.Op {
	case OpOpen:
		handle, err := l.srv.Open(req.Path, req.Flags)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Handle: handle}

	case OpRead:
		data, err := l.srv.Read(req.Handle, req.Offset, req.N)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Data: data, N: len(data)}

	case OpWrite:
		n, err := l.srv.Write(req.Handle, req.Offset, req.Data)
		if err != nil {
			return errorReply(err)
		}
		return Reply{N: n}

	case OpSetSize:
		if err := l.srv.SetSize(req.Handle, req.NewSize); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpStat:
		name, size, isDir, err := l.srv.Stat(req.Handle)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Name: name, Size: size, IsDir: isDir}

	case OpFlush:
		if err := l.srv.Flush(req.Handle); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpRemove:
		if err := l.srv.Remove(req.Path); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpShCreate:
		if err := l.srv.ShCreate(req.Name, req.Comment); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpShPrint:
		snaps, err := l.srv.ShPrint()
		if err != nil {
			return errorReply(err)
		}
		return Reply{Snapshots: snaps}

	case OpShAccept:
		if err := l.srv.ShAccept(req.Name); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpShDelete:
		if err := l.srv.ShDelete(req.Name); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpSync:
		if err := l.srv.Sync(); err != nil {
			return errorReply(err)
		}
		return Reply{}

	case OpDf:
		free, total := l.srv.Df()
		if l.met != nil {
			l.met.SetDiskUsage(free, total)
		}
		return Reply{FreeBlocks: free, TotalBlocks: total}

	default:
		return errorReply(fserrors.Invalf("ipc.dispatch", "unknown op %d", req.Op))
	}
}
