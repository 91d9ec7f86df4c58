// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/mdlayher/luks2unlock/pkg/luks2"
	"github.com/spf13/cobra"
)

var scanCheckUUID string

var scanCmd = &cobra.Command{
	Use:   "scan <device>",
	Short: "Probe a device for a matching LUKS2 header without deriving any key",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanCheckUUID, "check-uuid", "", "only match a header whose UUID equals this value")
}

func runScan(cmd *cobra.Command, args []string) error {
	device := args[0]
	opts := luks2.UnlockOptions{Device: device}

	if luks2.Scan(opts, scanCheckUUID) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: matched\n", device)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: no match\n", device)
	return nil
}
