// Package cmd provides the zapdav command line.
// This file contains helpers for configuration loading with CLI flag precedence.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagLoader provides methods for loading configuration values with CLI flag precedence.
// When a CLI flag is explicitly set, it takes precedence over config file and env vars.
// Otherwise, viper's standard priority applies: env > config file > default.
//
// Flags are looked up in viper under section.flagName, so --bucket reads
// backend.bucket from the config file and BACKEND_BUCKET from the environment.
type FlagLoader struct {
	cmd     *cobra.Command
	section string
}

// NewFlagLoader creates a FlagLoader for the given cobra command and config section.
func NewFlagLoader(cmd *cobra.Command, section string) *FlagLoader {
	return &FlagLoader{cmd: cmd, section: section}
}

func (f *FlagLoader) key(flagName string) string {
	if f.section == "" {
		return flagName
	}
	return f.section + "." + flagName
}

// String returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	if viper.IsSet(f.key(flagName)) {
		return viper.GetString(f.key(flagName))
	}
	val, _ := f.cmd.Flags().GetString(flagName)
	return val
}

// Bool returns CLI flag value if explicitly set, otherwise viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	if viper.IsSet(f.key(flagName)) {
		return viper.GetBool(f.key(flagName))
	}
	val, _ := f.cmd.Flags().GetBool(flagName)
	return val
}
