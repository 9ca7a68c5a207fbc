// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package relation implements the "docket relation" CLI subcommand
// group: establishing inventory relations between holders and resource
// types, listing them, and restocking their inventory.
package relation
