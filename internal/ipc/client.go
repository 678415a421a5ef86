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
	"net"

	"github.com/snapfs-project/snapfs/internal/fsserver"
)

// Client is the tiny synchronous stub cmd/snapctl and test callers dial
// the server with: one outstanding request at a time, per connection.
type Client struct {
	conn net.Conn
	dec  *gob.Decoder
	enc  *gob.Encoder
}

// Dial connects to the unix socket a Listener is serving.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, dec: gob.NewDecoder(conn), enc: gob.NewEncoder(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) roundTrip(req Request) (Reply, error) {
	if err := c.enc.Encode(&req); err != nil {
		return Reply{}, err
	}
	var reply Reply
	if err := c.dec.Decode(&reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (c *Client) Open(path string, flags fsserver.OpenFlags) (uint64, error) {
	reply, err := c.roundTrip(Request{Op: OpOpen, Path: path, Flags: flags})
	if err != nil {
		return 0, err
	}
	return reply.Handle, reply.asError()
}

func (c *Client) Read(handle uint64, off uint64, n int) ([]byte, error) {
	reply, err := c.roundTrip(Request{Op: OpRead, Handle: handle, Offset: off, N: n})
	if err != nil {
		return nil, err
	}
	return reply.Data, reply.asError()
}

func (c *Client) Write(handle uint64, off uint64, data []byte) (int, error) {
	reply, err := c.roundTrip(Request{Op: OpWrite, Handle: handle, Offset: off, Data: data})
	if err != nil {
		return 0, err
	}
	return reply.N, reply.asError()
}

func (c *Client) SetSize(handle uint64, newSize uint64) error {
	reply, err := c.roundTrip(Request{Op: OpSetSize, Handle: handle, NewSize: newSize})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) Stat(handle uint64) (name string, size uint64, isDir bool, err error) {
	reply, err := c.roundTrip(Request{Op: OpStat, Handle: handle})
	if err != nil {
		return "", 0, false, err
	}
	return reply.Name, reply.Size, reply.IsDir, reply.asError()
}

func (c *Client) Flush(handle uint64) error {
	reply, err := c.roundTrip(Request{Op: OpFlush, Handle: handle})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) Remove(path string) error {
	reply, err := c.roundTrip(Request{Op: OpRemove, Path: path})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) ShCreate(name, comment string) error {
	reply, err := c.roundTrip(Request{Op: OpShCreate, Name: name, Comment: comment})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) ShPrint() ([]fsserver.SnapshotInfo, error) {
	reply, err := c.roundTrip(Request{Op: OpShPrint})
	if err != nil {
		return nil, err
	}
	return reply.Snapshots, reply.asError()
}

func (c *Client) ShAccept(name string) error {
	reply, err := c.roundTrip(Request{Op: OpShAccept, Name: name})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) ShDelete(name string) error {
	reply, err := c.roundTrip(Request{Op: OpShDelete, Name: name})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) Sync() error {
	reply, err := c.roundTrip(Request{Op: OpSync})
	if err != nil {
		return err
	}
	return reply.asError()
}

func (c *Client) Df() (free, total uint32, err error) {
	reply, err := c.roundTrip(Request{Op: OpDf})
	if err != nil {
		return 0, 0, err
	}
	return reply.FreeBlocks, reply.TotalBlocks, reply.asError()
}
