// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package index implements the "docket index" CLI subcommand group for
// the local SQLite read model: rebuilding it from room state and
// querying it offline.
package index
