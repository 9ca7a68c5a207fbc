// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package registryindex maintains a SQLite projection of an
// organization's governance records.
//
// The rooms remain the source of truth; the index exists so listing
// commands and cross-case queries do not have to walk full room state
// on every invocation. Rebuild seeds the projection from a room state
// snapshot, Apply folds in state events as they arrive from /sync, and
// an empty-content event deletes the projected row the way a tombstone
// deletes the record. Dropping the database file and rebuilding is
// always safe.
package registryindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/lib/sqlitepool"
	"github.com/docket-foundation/docket/messaging"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS resource_types (
	room_id     TEXT NOT NULL,
	type_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	level       TEXT NOT NULL,
	perishable  INTEGER NOT NULL DEFAULT 0,
	infinite    INTEGER NOT NULL DEFAULT 0,
	replenishes INTEGER NOT NULL DEFAULT 0,
	content     TEXT NOT NULL,
	PRIMARY KEY (room_id, type_id)
);

CREATE TABLE IF NOT EXISTS relations (
	room_id     TEXT NOT NULL,
	relation_id TEXT NOT NULL,
	type_id     TEXT NOT NULL,
	holder      TEXT NOT NULL,
	capacity    INTEGER NOT NULL,
	available   INTEGER NOT NULL,
	content     TEXT NOT NULL,
	PRIMARY KEY (room_id, relation_id)
);
CREATE INDEX IF NOT EXISTS relations_by_type ON relations (room_id, type_id);

CREATE TABLE IF NOT EXISTS allocations (
	room_id       TEXT NOT NULL,
	allocation_id TEXT NOT NULL,
	case_id       TEXT NOT NULL,
	type_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL DEFAULT 0,
	content       TEXT NOT NULL,
	PRIMARY KEY (room_id, allocation_id)
);
CREATE INDEX IF NOT EXISTS allocations_by_case ON allocations (room_id, case_id);
CREATE INDEX IF NOT EXISTS allocations_by_status ON allocations (room_id, status);

CREATE TABLE IF NOT EXISTS assignments (
	room_id       TEXT NOT NULL,
	case_id       TEXT NOT NULL,
	primary_staff TEXT NOT NULL,
	transferable  INTEGER NOT NULL DEFAULT 0,
	content       TEXT NOT NULL,
	PRIMARY KEY (room_id, case_id)
);
CREATE INDEX IF NOT EXISTS assignments_by_staff ON assignments (room_id, primary_staff);
`

// Config holds the index's dependencies.
type Config struct {
	// Path is the SQLite database file. ":memory:" works for tests
	// with PoolSize 1.
	Path string
	// PoolSize is passed through to sqlitepool. Zero uses its default.
	PoolSize int
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Index is the SQLite projection. Safe for concurrent use.
type Index struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens (or creates) the index database and ensures the schema.
func Open(config Config) (*Index, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, indexSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registryindex: %w", err)
	}
	return &Index{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool.
func (idx *Index) Close() error {
	return idx.pool.Close()
}

// Rebuild replaces the projection of one room with a fresh snapshot of
// its state events. Rows from other rooms are untouched.
func (idx *Index) Rebuild(ctx context.Context, roomID ref.RoomID, state []messaging.Event) (err error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer idx.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("registryindex: begin rebuild: %w", err)
	}
	defer endTx(&err)

	for _, table := range []string{"resource_types", "relations", "allocations", "assignments"} {
		if err = sqlitex.Execute(conn, "DELETE FROM "+table+" WHERE room_id = ?", &sqlitex.ExecOptions{
			Args: []any{roomID.String()},
		}); err != nil {
			return fmt.Errorf("registryindex: clearing %s: %w", table, err)
		}
	}

	applied := 0
	for i := range state {
		ok, applyErr := idx.applyEvent(conn, roomID, &state[i])
		if applyErr != nil {
			err = applyErr
			return err
		}
		if ok {
			applied++
		}
	}

	idx.logger.Info("rebuilt registry index",
		"room_id", roomID,
		"state_events", len(state),
		"rows", applied,
	)
	return nil
}

// projectedTypes restricts the /sync stream Follow consumes to the
// event types the index projects, so chat traffic in a busy org room
// never reaches it.
var projectedTypes = []string{
	string(schema.EventTypeResourceType),
	string(schema.EventTypeRelation),
	string(schema.EventTypeAllocation),
	string(schema.EventTypeAssignment),
}

// Follow tails the room's /sync stream and folds each projected state
// event into the index as it arrives. It blocks until ctx is
// cancelled (a clean shutdown, returning nil) or the stream fails.
// Call Rebuild first so the projection starts from the current
// snapshot; Follow only sees events after it attaches.
func (idx *Index) Follow(ctx context.Context, session messaging.Session, roomID ref.RoomID) error {
	watcher, err := messaging.WatchRoom(ctx, session, roomID, &messaging.SyncFilter{
		TimelineTypes: projectedTypes,
	})
	if err != nil {
		return fmt.Errorf("registryindex: attaching to room %s: %w", roomID, err)
	}
	idx.logger.Info("following room state",
		"room_id", roomID,
		"sync_position", watcher.SyncPosition(),
	)

	for {
		event, err := watcher.WaitForEvent(ctx, func(event messaging.Event) bool {
			return event.StateKey != nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("registryindex: following room %s: %w", roomID, err)
		}
		changed, err := idx.Apply(ctx, roomID, &event)
		if err != nil {
			return err
		}
		if changed {
			idx.logger.Debug("applied state event",
				"room_id", roomID,
				"event_type", event.Type,
				"state_key", *event.StateKey,
			)
		}
	}
}

// Apply folds one state event into the projection. Events of types the
// index does not project are ignored. An event with empty content
// removes the projected row. Returns true when the event changed the
// projection.
func (idx *Index) Apply(ctx context.Context, roomID ref.RoomID, event *messaging.Event) (bool, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer idx.pool.Put(conn)
	return idx.applyEvent(conn, roomID, event)
}

func (idx *Index) applyEvent(conn *sqlite.Conn, roomID ref.RoomID, event *messaging.Event) (bool, error) {
	switch event.Type {
	case schema.EventTypeResourceType, schema.EventTypeRelation,
		schema.EventTypeAllocation, schema.EventTypeAssignment:
	default:
		return false, nil
	}
	if event.StateKey == nil {
		return false, nil
	}
	stateKey := *event.StateKey

	if event.IsTombstone() {
		return true, idx.deleteRow(conn, roomID, event.Type, stateKey)
	}

	raw, err := json.Marshal(event.Content)
	if err != nil {
		return false, fmt.Errorf("registryindex: encoding %s content: %w", event.Type, err)
	}

	switch event.Type {
	case schema.EventTypeResourceType:
		var content schema.ResourceTypeContent
		if err := json.Unmarshal(raw, &content); err != nil {
			idx.warnMalformed(roomID, event, err)
			return false, nil
		}
		return true, sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO resource_types
				(room_id, type_id, name, category, level, perishable, infinite, replenishes, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				roomID.String(), stateKey, content.Name, content.Category, content.Level,
				boolToInt(content.Perishable), boolToInt(content.Infinite),
				boolToInt(content.Replenishes), string(raw),
			},
		})

	case schema.EventTypeRelation:
		var content schema.RelationContent
		if err := json.Unmarshal(raw, &content); err != nil {
			idx.warnMalformed(roomID, event, err)
			return false, nil
		}
		return true, sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO relations
				(room_id, relation_id, type_id, holder, capacity, available, content)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				roomID.String(), stateKey, content.ResourceTypeID.String(),
				content.Holder.String(), content.Capacity, content.Available, string(raw),
			},
		})

	case schema.EventTypeAllocation:
		var content schema.AllocationContent
		if err := json.Unmarshal(raw, &content); err != nil {
			idx.warnMalformed(roomID, event, err)
			return false, nil
		}
		return true, sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO allocations
				(room_id, allocation_id, case_id, type_id, status, quantity, expires_at, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				roomID.String(), stateKey, content.CaseID.String(),
				content.ResourceTypeID.String(), content.Status, content.Quantity,
				content.ExpiresAt, string(raw),
			},
		})

	case schema.EventTypeAssignment:
		var content schema.AssignmentContent
		if err := json.Unmarshal(raw, &content); err != nil {
			idx.warnMalformed(roomID, event, err)
			return false, nil
		}
		return true, sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO assignments
				(room_id, case_id, primary_staff, transferable, content)
			VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				roomID.String(), stateKey, content.PrimaryStaff.String(),
				boolToInt(content.Transferable), string(raw),
			},
		})
	}
	return false, nil
}

func (idx *Index) deleteRow(conn *sqlite.Conn, roomID ref.RoomID, eventType ref.EventType, stateKey string) error {
	var query string
	switch eventType {
	case schema.EventTypeResourceType:
		query = "DELETE FROM resource_types WHERE room_id = ? AND type_id = ?"
	case schema.EventTypeRelation:
		query = "DELETE FROM relations WHERE room_id = ? AND relation_id = ?"
	case schema.EventTypeAllocation:
		query = "DELETE FROM allocations WHERE room_id = ? AND allocation_id = ?"
	case schema.EventTypeAssignment:
		query = "DELETE FROM assignments WHERE room_id = ? AND case_id = ?"
	default:
		return nil
	}
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{roomID.String(), stateKey},
	})
}

func (idx *Index) warnMalformed(roomID ref.RoomID, event *messaging.Event, err error) {
	idx.logger.Warn("skipping malformed state event",
		"room_id", roomID,
		"event_type", event.Type,
		"event_id", event.EventID,
		"error", err,
	)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ResourceTypes returns the projected resource types in a room,
// ordered by name.
func (idx *Index) ResourceTypes(ctx context.Context, roomID ref.RoomID) ([]schema.ResourceTypeContent, error) {
	return queryContent[schema.ResourceTypeContent](ctx, idx,
		"SELECT content FROM resource_types WHERE room_id = ? ORDER BY name",
		roomID.String())
}

// Relations returns the projected relations in a room. Pass a non-zero
// typeID to restrict to one resource type.
func (idx *Index) Relations(ctx context.Context, roomID ref.RoomID, typeID ref.TypeID) ([]schema.RelationContent, error) {
	if typeID.IsZero() {
		return queryContent[schema.RelationContent](ctx, idx,
			"SELECT content FROM relations WHERE room_id = ? ORDER BY relation_id",
			roomID.String())
	}
	return queryContent[schema.RelationContent](ctx, idx,
		"SELECT content FROM relations WHERE room_id = ? AND type_id = ? ORDER BY relation_id",
		roomID.String(), typeID.String())
}

// Allocations returns the projected allocations in a room. Pass a
// non-zero caseID to restrict to one case; pass a status to restrict
// by settlement state.
func (idx *Index) Allocations(ctx context.Context, roomID ref.RoomID, caseID ref.RoomID, status string) ([]schema.AllocationContent, error) {
	query := "SELECT content FROM allocations WHERE room_id = ?"
	args := []any{roomID.String()}
	if !caseID.IsZero() {
		query += " AND case_id = ?"
		args = append(args, caseID.String())
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY allocation_id"
	return queryContent[schema.AllocationContent](ctx, idx, query, args...)
}

// Assignments returns the projected assignments in a room. Pass a
// non-zero staff user to restrict to cases they carry as primary.
func (idx *Index) Assignments(ctx context.Context, roomID ref.RoomID, primaryStaff ref.UserID) ([]schema.AssignmentContent, error) {
	if primaryStaff.IsZero() {
		return queryContent[schema.AssignmentContent](ctx, idx,
			"SELECT content FROM assignments WHERE room_id = ? ORDER BY case_id",
			roomID.String())
	}
	return queryContent[schema.AssignmentContent](ctx, idx,
		"SELECT content FROM assignments WHERE room_id = ? AND primary_staff = ? ORDER BY case_id",
		roomID.String(), primaryStaff.String())
}

// queryContent runs a single-column query returning JSON content rows
// and unmarshals each into T.
func queryContent[T any](ctx context.Context, idx *Index, query string, args ...any) ([]T, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer idx.pool.Put(conn)

	var out []T
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var value T
			if err := json.Unmarshal([]byte(stmt.ColumnText(0)), &value); err != nil {
				return fmt.Errorf("registryindex: decoding row: %w", err)
			}
			out = append(out, value)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registryindex: query: %w", err)
	}
	return out, nil
}
