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

func newLockCmd() *cobra.Command {
	var datastore, holder string
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire a datastore's write lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = callEngine(cfg.SocketPath, &ipc.Request{Op: ipc.OpLock, Datastore: datastore, Holder: holder})
			return err
		},
	}
	cmd.Flags().StringVar(&datastore, "datastore", "candidate", "datastore to lock")
	cmd.Flags().StringVar(&holder, "holder", "", "lock holder identifier (e.g. the session id)")
	cmd.MarkFlagRequired("holder")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	var datastore, holder string
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release a datastore's write lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = callEngine(cfg.SocketPath, &ipc.Request{Op: ipc.OpUnlock, Datastore: datastore, Holder: holder})
			return err
		},
	}
	cmd.Flags().StringVar(&datastore, "datastore", "candidate", "datastore to unlock")
	cmd.Flags().StringVar(&holder, "holder", "", "lock holder identifier")
	cmd.MarkFlagRequired("holder")
	return cmd
}
