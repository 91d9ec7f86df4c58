// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var debug bool

var cliLog = logrus.WithField("channel", "luks2-cli")

var rootCmd = &cobra.Command{
	Use:     "luks2unlock",
	Short:   "Boot-time LUKS2 header discovery and key recovery",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		logChangedFlags(cmd.Flags())
	},
}

// logChangedFlags emits one debug breadcrumb per flag the caller actually
// set, so a boot-time log capture shows what was asked for without dumping
// every flag's default alongside it.
func logChangedFlags(flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "key-file" {
			cliLog.Debugf("flag --%s set (value withheld)", f.Name)
			return
		}
		cliLog.Debugf("flag --%s=%s", f.Name, f.Value.String())
	})
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable the luks2 debug log channel")
	rootCmd.AddCommand(openCmd, scanCmd)
}
