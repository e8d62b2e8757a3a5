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
	"github.com/spf13/cobra"

	"github.com/nmscore/netconfd/ipc"
)

func newCopyConfigCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "copy-config",
		Short: "Copy one datastore's content over another",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = callEngine(cfg.SocketPath, &ipc.Request{Op: ipc.OpCopyConfig, From: from, To: to})
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source datastore")
	cmd.Flags().StringVar(&to, "to", "", "destination datastore")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newDeleteConfigCmd() *cobra.Command {
	var datastore string
	cmd := &cobra.Command{
		Use:   "delete-config",
		Short: "Delete a datastore's content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = callEngine(cfg.SocketPath, &ipc.Request{Op: ipc.OpDeleteConfig, Datastore: datastore})
			return err
		},
	}
	cmd.Flags().StringVar(&datastore, "datastore", "", "datastore to delete")
	cmd.MarkFlagRequired("datastore")
	return cmd
}
