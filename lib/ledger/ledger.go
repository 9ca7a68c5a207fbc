// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger appends typed operations to a room's timeline and
// reads them back in provenance order.
//
// An operation is an immutable record of one governance act: a verb
// from the canonical nine, a target path, an actor, a timestamp, an
// interpretive frame, and an optional payload. Operations are Matrix
// timeline events (m.docket.operation) — the room's timeline IS the
// ledger, so history cannot be rewritten without the homeserver's
// cooperation.
//
// Provenance chains link each operation to its predecessor on the same
// target path through the "prev" field. The chain head lives in an
// m.docket.operation_head state event keyed by target path, updated
// after every append, so linking costs one state read instead of a
// timeline scan. Two writers appending to the same path concurrently
// can both link the same predecessor; the head then reflects the later
// write and Query still returns both operations in timestamp order.
// The ledger records what happened — it does not serialize writers.
//
// Operation IDs are content hashes: blake3 over the deterministic CBOR
// encoding of the record (lib/codec), prefixed "op-". Identical records
// produce identical IDs, making accidental double-appends visible.
//
// The ledger never retries and never notifies. Substrate errors
// surface verbatim; consumers who want to observe new operations watch
// the room with messaging.RoomWatcher.
package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/codec"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

// operationIDBytes is how much of the blake3 digest goes into the
// operation ID. 8 bytes (16 hex characters) keeps state keys and log
// lines readable; collisions within one room's ledger are not a
// realistic concern at that width.
const operationIDBytes = 8

// queryPageSize is the page size for timeline pagination in Query.
const queryPageSize = 100

// Session is the subset of the Matrix client-server API the ledger
// needs. Satisfied by messaging.Session and *messaging.DirectSession.
type Session interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)
	RoomMessages(ctx context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error)
}

// Config holds the ledger's dependencies.
type Config struct {
	Session Session
	// Clock stamps operations. Nil uses the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Ledger appends and queries operations. Safe for concurrent use; see
// the package comment for concurrent-append semantics.
type Ledger struct {
	session Session
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Ledger.
func New(config Config) (*Ledger, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("ledger: Session is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{session: config.Session, clock: clk, logger: logger}, nil
}

// AppendRequest describes one operation to append.
type AppendRequest struct {
	Verb       Verb
	TargetPath ref.TargetPath
	Payload    map[string]any
	Actor      ref.UserID
	Frame      schema.Frame
}

// Operation is a ledger entry read back from a room, pairing the
// record content with its timeline position.
type Operation struct {
	schema.OperationContent

	EventID        ref.EventID
	OriginServerTS int64
}

// Append writes one operation to the room's timeline and advances the
// target path's head pointer. Returns the content-derived operation ID.
//
// The head update is a separate write after the timeline event; if it
// fails, the operation is already durable and the error tells the
// caller the chain pointer is stale. Query does not depend on the head,
// so a stale head only costs the next Append a longer prev (it links
// the older head).
func (l *Ledger) Append(ctx context.Context, roomID ref.RoomID, request AppendRequest) (ref.OperationID, error) {
	if !request.Verb.Valid() {
		return ref.OperationID{}, &UnknownVerbError{Verb: request.Verb}
	}
	if request.TargetPath.IsZero() {
		return ref.OperationID{}, fmt.Errorf("ledger: target path is required")
	}
	if request.Actor.IsZero() {
		return ref.OperationID{}, fmt.Errorf("ledger: actor is required")
	}

	head, err := l.readHead(ctx, roomID, request.TargetPath)
	if err != nil {
		return ref.OperationID{}, err
	}

	content := schema.OperationContent{
		Verb:       request.Verb.String(),
		TargetPath: request.TargetPath,
		Payload:    request.Payload,
		Actor:      request.Actor,
		Timestamp:  l.clock.Now().UnixMilli(),
		Frame:      request.Frame,
		Prev:       head.Head,
	}

	operationID, err := contentID(&content)
	if err != nil {
		return ref.OperationID{}, err
	}
	content.ID = operationID

	eventID, err := l.session.SendEvent(ctx, roomID, schema.EventTypeOperation, &content)
	if err != nil {
		return ref.OperationID{}, fmt.Errorf("ledger: appending operation %s on %s: %w", operationID, request.TargetPath, err)
	}

	newHead := schema.OperationHeadContent{Head: operationID, Count: head.Count + 1}
	if _, err := l.session.SendStateEvent(ctx, roomID, schema.EventTypeOperationHead, request.TargetPath.String(), &newHead); err != nil {
		return operationID, fmt.Errorf("ledger: operation %s appended but head update for %s failed: %w",
			operationID, request.TargetPath, err)
	}

	l.logger.Info("appended ledger operation",
		"room_id", roomID,
		"operation_id", operationID,
		"verb", request.Verb,
		"target_path", request.TargetPath,
		"event_id", eventID,
	)
	return operationID, nil
}

// Head returns the current chain head for a target path. A path with
// no operations returns a zero head and count 0.
func (l *Ledger) Head(ctx context.Context, roomID ref.RoomID, targetPath ref.TargetPath) (schema.OperationHeadContent, error) {
	return l.readHead(ctx, roomID, targetPath)
}

func (l *Ledger) readHead(ctx context.Context, roomID ref.RoomID, targetPath ref.TargetPath) (schema.OperationHeadContent, error) {
	raw, err := l.session.GetStateEvent(ctx, roomID, schema.EventTypeOperationHead, targetPath.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return schema.OperationHeadContent{}, nil
		}
		return schema.OperationHeadContent{}, fmt.Errorf("ledger: reading head for %s: %w", targetPath, err)
	}
	if schema.IsTombstone(raw) {
		return schema.OperationHeadContent{}, nil
	}
	var head schema.OperationHeadContent
	if err := json.Unmarshal(raw, &head); err != nil {
		return schema.OperationHeadContent{}, fmt.Errorf("ledger: parsing head for %s: %w", targetPath, err)
	}
	return head, nil
}

// Query returns every operation on the target path, oldest first.
// Ordering is by origin server timestamp, with arrival order breaking
// ties. Pass a zero TargetPath to return all operations in the room.
func (l *Ledger) Query(ctx context.Context, roomID ref.RoomID, targetPath ref.TargetPath) ([]Operation, error) {
	var operations []Operation
	from := ""
	for {
		response, err := l.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
			From:      from,
			Direction: "f",
			Limit:     queryPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("ledger: querying operations in %s: %w", roomID, err)
		}

		for _, event := range response.Chunk {
			if event.Type != schema.EventTypeOperation {
				continue
			}
			operation, err := decodeOperation(event)
			if err != nil {
				l.logger.Warn("skipping malformed ledger operation",
					"room_id", roomID,
					"event_id", event.EventID,
					"error", err,
				)
				continue
			}
			if !targetPath.IsZero() && operation.TargetPath != targetPath {
				continue
			}
			operations = append(operations, operation)
		}

		if response.End == "" || len(response.Chunk) == 0 {
			break
		}
		from = response.End
	}

	sort.SliceStable(operations, func(i, j int) bool {
		return operations[i].OriginServerTS < operations[j].OriginServerTS
	})
	return operations, nil
}

// decodeOperation converts a timeline event into an Operation. The
// event content arrives as map[string]any from the sync/messages
// parser; round-trip through JSON to apply the typed unmarshalers.
func decodeOperation(event messaging.Event) (Operation, error) {
	raw, err := json.Marshal(event.Content)
	if err != nil {
		return Operation{}, fmt.Errorf("re-encoding content: %w", err)
	}
	var content schema.OperationContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return Operation{}, fmt.Errorf("parsing operation content: %w", err)
	}
	if err := content.Validate(); err != nil {
		return Operation{}, err
	}
	return Operation{
		OperationContent: content,
		EventID:          event.EventID,
		OriginServerTS:   event.OriginServerTS,
	}, nil
}

// contentID hashes the operation record into its ID. The ID field
// itself is excluded from the encoding (cbor:"-"), so the hash covers
// verb, target, payload, actor, timestamp, frame, and prev.
func contentID(content *schema.OperationContent) (ref.OperationID, error) {
	encoded, err := codec.Marshal(content)
	if err != nil {
		return ref.OperationID{}, fmt.Errorf("ledger: encoding operation for hashing: %w", err)
	}
	digest := blake3.Sum256(encoded)
	return ref.OperationIDFromHash(hex.EncodeToString(digest[:operationIDBytes]))
}
