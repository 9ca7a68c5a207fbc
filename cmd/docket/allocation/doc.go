// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package allocation implements the "docket allocation" CLI subcommand
// group: allocating resources to cases, recording settlements, listing
// allocations, and sweeping expired ones.
package allocation
