// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package roster implements the "docket roster" CLI subcommand group:
// adding staff to the organization's roster, removing them, and
// listing who holds which role.
package roster
