// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/mdlayher/luks2unlock/pkg/luks2"
	"github.com/spf13/cobra"
)

var (
	openKeyFile        string
	openDetachedHeader string
)

var openCmd = &cobra.Command{
	Use:   "open <device> <name>",
	Short: "Recover the master key and program a decrypting device-mapper target",
	Args:  cobra.ExactArgs(2),
	RunE:  runOpen,
}

func init() {
	openCmd.Flags().StringVar(&openKeyFile, "key-file", "", "read the passphrase verbatim from this file instead of prompting")
	openCmd.Flags().StringVar(&openDetachedHeader, "detached-header", "", "read the LUKS2 header and metadata from this file instead of the device")
}

func runOpen(cmd *cobra.Command, args []string) error {
	device, name := args[0], args[1]

	opts := luks2.UnlockOptions{
		Device:             device,
		DetachedHeaderPath: openDetachedHeader,
		MappedName:         name,
	}

	passphrase, err := resolvePassphraseSource(openKeyFile)
	if err != nil {
		return err
	}

	slot, err := luks2.RecoverKey(opts, passphrase, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("opening %s: %w", device, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "device mapper created: /dev/mapper/%s (slot %d)\n", name, slot)
	return nil
}

// resolvePassphraseSource builds a PassphraseSource from the --key-file flag
// when present, falling back to an interactive no-echo terminal prompt.
func resolvePassphraseSource(keyFile string) (luks2.PassphraseSource, error) {
	if keyFile == "" {
		return luks2.PassphraseSource{
			Prompt: func() ([]byte, error) {
				return promptPassphrase("Enter passphrase: ")
			},
		}, nil
	}

	raw, err := os.ReadFile(keyFile) // #nosec G304 -- path supplied explicitly by the operator
	if err != nil {
		return luks2.PassphraseSource{}, fmt.Errorf("reading key file: %w", err)
	}
	return luks2.PassphraseSource{KeyFile: raw}, nil
}
