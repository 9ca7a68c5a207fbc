// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger implements the "docket ledger" CLI subcommand group
// for inspecting the operation ledger: the history of a target and
// its provenance chain head.
package ledger
