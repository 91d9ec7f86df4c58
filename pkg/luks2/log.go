// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import "github.com/sirupsen/logrus"

// debugLog is the §7 debug channel "luks2": per-slot progress breadcrumbs,
// never promoted past Debug because the enumeration loop that emits them
// swallows every error it sees.
var debugLog = logrus.WithField("channel", "luks2")
