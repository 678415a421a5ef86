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

// Package ipc implements the request/reply protocol client processes use
// to talk to snapfsd: a tagged Request/Reply pair gob-encoded across a
// net.Conn, the Go-native analogue of an fd-based kernel
// channel in fuseutil/server.go. One request is outstanding per
// connection and one connection is serviced at a time.
package ipc

import (
	"time"

	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/fsserver"
)

// Op names one of the requests the server dispatches.
type Op uint8

const (
	OpOpen Op = iota
	OpRead
	OpWrite
	OpSetSize
	OpStat
	OpFlush
	OpRemove
	OpShCreate
	OpShPrint
	OpShAccept
	OpShDelete
	OpSync
	OpDf
)

// Request is the single wire type every op is encoded as; fields unused
// by a given Op are left zero.
type Request struct {
	Op      Op
	Path    string
	Handle  uint64
	Offset  uint64
	N       int
	Data    []byte
	NewSize uint64
	Name    string
	Comment string
	Flags   fsserver.OpenFlags
}

// Reply is the single wire type every response is encoded as. Code is
// non-zero exactly when Err is non-empty: a *fserrors.Error doesn't
// round-trip through gob (it carries an error interface field), so the
// server flattens it to a code and a message instead, a fixed
// error-to-errno mapping.
type Reply struct {
	Err  string
	Code fserrors.Code

	Handle uint64
	Data   []byte
	N      int

	Name  string
	Size  uint64
	IsDir bool

	Snapshots []fsserver.SnapshotInfo

	FreeBlocks  uint32
	TotalBlocks uint32
}

// errorReply flattens err into a Reply, or returns a zero Reply if err is
// nil.
func errorReply(err error) Reply {
	if err == nil {
		return Reply{}
	}
	if fe, ok := err.(*fserrors.Error); ok {
		return Reply{Err: fe.Error(), Code: fe.Code}
	}
	return Reply{Err: err.Error(), Code: fserrors.Inval}
}

// asError reconstructs an error from a Reply for the client side.
func (r Reply) asError() error {
	if r.Err == "" {
		return nil
	}
	return fserrors.New("ipc", r.Code, errString(r.Err))
}

type errString string

func (e errString) Error() string { return string(e) }

// opName returns the metrics-facing label for op, used as the "op"
// attribute on every recorded IPC measurement.
func opName(op Op) string {
	switch op {
	case OpOpen:
		return "OPEN"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpSetSize:
		return "SET_SIZE"
	case OpStat:
		return "STAT"
	case OpFlush:
		return "FLUSH"
	case OpRemove:
		return "REMOVE"
	case OpShCreate:
		return "SH_CREATE"
	case OpShPrint:
		return "SH_PRINT"
	case OpShAccept:
		return "SH_ACCEPT"
	case OpShDelete:
		return "SH_DELETE"
	case OpSync:
		return "SYNC"
	case OpDf:
		return "DF"
	default:
		return "UNKNOWN"
	}
}

// requestTimeout bounds how long the server waits to read the next
// request on an idle connection before closing it; the protocol assigns no
// cancellation semantics to the core, so this is purely a transport-level
// housekeeping knob, not a core operation deadline.
const requestTimeout = 5 * time.Minute
