// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "acb", 2},
		{"resource", "rsource", 1},
		{"roster", "rooster", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "resource"},
		{Name: "relation"},
		{Name: "allocation"},
		{Name: "roster"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"rsource", "resource"},
		{"rooster", "roster"},
		{"allocatoin", "allocation"},
		{"zzzzzzzzz", ""},
	}

	for _, tt := range tests {
		if got := suggestCommand(tt.input, commands); got != tt.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flagSet.Bool("readonly", false, "")
	flagSet.String("socket", "", "")
	flagSet.BoolP("json", "j", false, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"close typo", []string{"--readnoly"}, "--readonly"},
		{"typo with value", []string{"--socet=/tmp/x"}, "--socket"},
		{"defined flag skipped", []string{"--readonly", "--socet"}, "--socket"},
		{"distant input", []string{"--zzzzzzzzz"}, ""},
		{"no flags in args", []string{"positional"}, ""},
		{"single char suggestion", []string{"-jj"}, "--json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestFlag(tt.args, flagSet); got != tt.want {
				t.Errorf("suggestFlag(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
