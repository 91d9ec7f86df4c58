// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
)

// Terminal abstracts no-echo password reading so tests can inject a fake
// instead of driving a real controlling terminal.
type Terminal interface {
	ReadPassword(fd int) ([]byte, error)
}

var terminal Terminal = &DefaultTerminal{}

// promptPassphrase writes prompt to stderr (so stdout stays script-friendly)
// and reads one no-echo line from the controlling terminal.
func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return pass, nil
}
