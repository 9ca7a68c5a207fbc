// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the docket binary:
// the command tree, flag binding from tagged parameter structs,
// categorized errors, JSON output mode, and the operator session.
//
// Commands are declared as [Command] values with a Params struct whose
// flag/desc/default tags drive pflag registration (see [BindFlags]).
// Run receives a context, the positional arguments left after flag
// parsing, and a structured logger scoped to the command.
//
// Authentication follows the SSH-key model: "docket login" saves an
// [OperatorSession] once, and every other command loads it
// transparently via [ConnectionConfig.Connect].
package cli
