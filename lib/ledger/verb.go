// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import "fmt"

// Verb is one of the nine canonical operation verbs. Every ledger
// entry carries exactly one; anything else is rejected before any
// substrate write.
type Verb string

// The verb taxonomy, grouped into three triads.
const (
	// Existence triad: bringing things into and out of being.
	VerbDesignate   Verb = "designate"   // name a concept or category
	VerbInstantiate Verb = "instantiate" // create a concrete record
	VerbNull        Verb = "null"        // retire a record

	// Structure triad: relating things to each other.
	VerbSegment    Verb = "segment"    // divide into parts
	VerbConnect    Verb = "connect"    // link two records
	VerbSynthesize Verb = "synthesize" // combine into a new whole

	// Interpretation triad: changing what a record means.
	VerbAlter     Verb = "alter"     // change a record's state
	VerbSuperpose Verb = "superpose" // layer an alternative reading
	VerbReconcile Verb = "reconcile" // resolve conflicting readings
)

// Triad is the verb group an operation belongs to.
type Triad string

const (
	TriadExistence      Triad = "existence"
	TriadStructure      Triad = "structure"
	TriadInterpretation Triad = "interpretation"
)

// Valid reports whether the verb is one of the nine canonical verbs.
func (v Verb) Valid() bool {
	switch v {
	case VerbDesignate, VerbInstantiate, VerbNull,
		VerbSegment, VerbConnect, VerbSynthesize,
		VerbAlter, VerbSuperpose, VerbReconcile:
		return true
	}
	return false
}

// Triad returns the verb's group. Panics on an invalid verb — callers
// must check Valid first.
func (v Verb) Triad() Triad {
	switch v {
	case VerbDesignate, VerbInstantiate, VerbNull:
		return TriadExistence
	case VerbSegment, VerbConnect, VerbSynthesize:
		return TriadStructure
	case VerbAlter, VerbSuperpose, VerbReconcile:
		return TriadInterpretation
	}
	panic(fmt.Sprintf("ledger: invalid verb %q", string(v)))
}

// String returns the verb as a string.
func (v Verb) String() string { return string(v) }

// UnknownVerbError reports an attempt to append an operation with a
// verb outside the canonical nine.
type UnknownVerbError struct {
	Verb Verb
}

func (e *UnknownVerbError) Error() string {
	return fmt.Sprintf("ledger: unknown verb %q", string(e.Verb))
}
