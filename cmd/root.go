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

// Package cmd holds the cobra/viper wiring shared by the snapfsd server
// and the snapctl client: flag binding (cfg.BindFlags), a --config-file
// override, and a RunE that only does validation and handoff.
package cmd

import (
	"fmt"

	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	bindErr error
)

// LoadConfig resolves --config-file (if any) against viper's bound flags
// and returns the fully validated Config, the same three-step
// bind-then-unmarshal-then-validate an initConfig/validateConfig
// pair performs.
func LoadConfig(cmd *cobra.Command) (cfg.Config, error) {
	if bindErr != nil {
		return cfg.Config{}, bindErr
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return cfg.Config{}, fmt.Errorf("reading config file %q: %w", cfgFile, err)
		}
	}

	c, err := cfg.Unmarshal(viper.GetViper())
	if err != nil {
		return cfg.Config{}, err
	}
	if err := c.Validate(); err != nil {
		return cfg.Config{}, err
	}
	return c, nil
}

// BindPersistentFlags registers --config-file and every cfg.BindFlags flag
// against cmd's persistent flag set. Call once from each binary's root
// command init.
func BindPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file overriding flag defaults.")
	bindErr = cfg.BindFlags(cmd.PersistentFlags())
}
