// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource implements the "docket resource" CLI subcommand
// group: defining resource types, listing and inspecting them,
// adjusting their permission grants, running replenishment cycles, and
// promoting a type from one governance room to a wider one.
package resource
