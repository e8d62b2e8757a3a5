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
	"os"

	"github.com/spf13/cobra"

	"github.com/nmscore/netconfd/ipc"
)

func newEditConfigCmd() *cobra.Command {
	var (
		datastore, username, defaultOp, testOption, errorOption, file string
	)
	cmd := &cobra.Command{
		Use:   "edit-config",
		Short: "Apply an RFC 7951 JSON patch to a datastore",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			_, err = callEngine(cfg.SocketPath, &ipc.Request{
				Op:          ipc.OpEditConfig,
				Username:    username,
				Datastore:   datastore,
				Body:        string(body),
				DefaultOp:   defaultOp,
				TestOption:  testOption,
				ErrorOption: errorOption,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&datastore, "datastore", "candidate", "datastore to edit")
	cmd.Flags().StringVar(&username, "username", "", "requesting user, for NACM write checks")
	cmd.Flags().StringVar(&defaultOp, "default-operation", "merge", "merge|replace|create|delete|remove")
	cmd.Flags().StringVar(&testOption, "test-option", "test-then-set", "test-then-set|set|test-only")
	cmd.Flags().StringVar(&errorOption, "error-option", "stop-on-error", "stop-on-error|continue-on-error|rollback-on-error")
	cmd.Flags().StringVar(&file, "file", "", "path to the RFC 7951 JSON patch document")
	cmd.MarkFlagRequired("file")
	return cmd
}
