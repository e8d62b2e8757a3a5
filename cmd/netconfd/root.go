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

// Command netconfd is the CLI front end of spec.md §6: a "serve"
// subcommand that starts the configuration-management engine, and a
// handful of one-shot subcommands (get-config, edit-config, validate,
// lock, unlock, copy-config, delete-config) that talk to a running
// instance over its Unix-domain socket. Grounded on
// ygot/gnmidiff/cmd.Execute's cobra-root-plus-viper-overlay pairing,
// the only cobra+viper wiring found anywhere in the retrieval pack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nmscore/netconfd/config"
)

var cfgFile string

// rootCmd is netconfd's single entry point; unlike
// ygot/gnmidiff/gnmidiff/main.go (which calls a cmd.RootCmd() that
// package gnmidiff/cmd never defines), Execute below is the one and
// only exported entry point this package offers.
func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netconfd",
		Short: "NETCONF/RESTCONF configuration-management engine",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "/etc/netconfd/netconfd.xml", "path to the startup configuration file")
	root.PersistentFlags().String("socket-path", "", "override the engine's control socket path")
	root.PersistentFlags().String("yang-main-file", "", "override the YANG main module file")
	root.PersistentFlags().String("datastore-dir", "", "override the datastore storage directory")
	root.PersistentFlags().String("nacm-mode", "", "override the NACM mode (inline|file)")
	root.PersistentFlags().String("nacm-file", "", "override the external NACM document path")
	root.PersistentFlags().Bool("cache-enable", false, "override datastore read-cache enablement")

	root.AddCommand(newServeCmd())
	root.AddCommand(newGetConfigCmd())
	root.AddCommand(newEditConfigCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newLockCmd())
	root.AddCommand(newUnlockCmd())
	root.AddCommand(newCopyConfigCmd())
	root.AddCommand(newDeleteConfigCmd())
	return root
}

// loadConfig reads cfgFile if present, then overlays it with cmd's own
// flags and NETCONFD_* environment variables via config.Overlay. A
// missing config file is not an error: an all-flags/env deployment is
// valid, matching viper.AutomaticEnv's "no config file required" use
// in ygot/gnmidiff/cmd.Execute.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			c, err := config.LoadFile(cfgFile)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", cfgFile, err)
			}
			cfg = c
		}
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := config.Overlay(cfg, cmd.Flags()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs netconfd's command tree against os.Args.
func Execute() error {
	return rootCmd().Execute()
}
