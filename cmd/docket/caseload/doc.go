// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package caseload implements the "docket case" CLI subcommand group:
// assigning staff to cases, transferring cases between staff, listing
// the caseload, and repairing room membership to match assignments.
package caseload
