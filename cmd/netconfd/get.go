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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmscore/netconfd/ipc"
)

func newGetConfigCmd() *cobra.Command {
	var datastore, username string
	cmd := &cobra.Command{
		Use:   "get-config",
		Short: "Fetch a datastore's content as RFC 7951 JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			resp, err := callEngine(cfg.SocketPath, &ipc.Request{
				Op:        ipc.OpGetConfig,
				Username:  username,
				Datastore: datastore,
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&datastore, "datastore", "running", "datastore to read (running|candidate|startup|tmp)")
	cmd.Flags().StringVar(&username, "username", "", "requesting user, for NACM read filtering")
	return cmd
}
