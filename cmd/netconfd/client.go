// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"net"

	"github.com/nmscore/netconfd/ipc"
)

// callEngine dials socketPath, sends req, and returns the decoded
// Response, translating Response.Error into a Go error so callers
// don't need to check it themselves.
func callEngine(socketPath string, req *ipc.Request) (*ipc.Response, error) {
	if socketPath == "" {
		return nil, errors.New("socket-path is not configured; pass --socket-path or set it in the config file")
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := ipc.WriteRequest(conn, req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	resp, err := ipc.NewDecoder(conn).ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
