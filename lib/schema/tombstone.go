// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "encoding/json"

// Tombstone is the content written to delete a record: the empty
// object. Matrix state events cannot be removed, only overwritten, so
// an empty object at an existing state key means "this record is gone".
var Tombstone = struct{}{}

// IsTombstone reports whether raw state event content is a tombstone
// (an empty JSON object). Malformed content is not a tombstone —
// readers surface it as a parse error instead of silently treating the
// record as deleted.
func IsTombstone(raw json.RawMessage) bool {
	var content map[string]json.RawMessage
	if err := json.Unmarshal(raw, &content); err != nil {
		return false
	}
	return len(content) == 0
}
