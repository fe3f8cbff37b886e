// Package change implements the mutation engine: ChangeSet/Change
// application, the append-only change/history log, sparse-order
// maintenance for Add/Move, and undo/redo derived on demand from that
// log.
package change

import (
	"encoding/json"
	"time"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/internal/ordered"
	"gitlab.com/rltbl/relatable/rerr"
)

// Action is the kind of a persisted change row.
type Action int

const (
	Do Action = iota
	Undo
	Redo
)

func (a Action) String() string {
	switch a {
	case Undo:
		return "Undo"
	case Redo:
		return "Redo"
	default:
		return "Do"
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Undo":
		*a = Undo
	case "Redo":
		*a = Redo
	default:
		*a = Do
	}
	return nil
}

// ChangeKind enumerates the four mutation shapes a Change can take.
type ChangeKind int

const (
	Update ChangeKind = iota
	Add
	Delete
	Move
)

func (k ChangeKind) String() string {
	switch k {
	case Add:
		return "add"
	case Delete:
		return "delete"
	case Move:
		return "move"
	default:
		return "update"
	}
}

func (k ChangeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ChangeKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "add":
		*k = Add
	case "delete":
		*k = Delete
	case "move":
		*k = Move
	default:
		*k = Update
	}
	return nil
}

// Change is one row mutation within a ChangeSet. Which fields are
// meaningful depends on Kind:
//
//   - Update: Row, Column, Value (the new value).
//   - Add: AfterID (nil places the row last), Cells (initial non-meta values).
//   - Delete: Row.
//   - Move: Row, AfterID (nil moves the row last).
type Change struct {
	Kind    ChangeKind        `json:"kind"`
	Row     int64             `json:"row,omitempty"`
	Column  string            `json:"column,omitempty"`
	Value   any               `json:"value,omitempty"`
	AfterID *int64            `json:"after_id,omitempty"`
	Cells   *ordered.Map[any] `json:"cells,omitempty"`
}

// ChangeSet is a named, ordered, atomically-applied batch of Changes
// over one table, submitted by one user.
type ChangeSet struct {
	User        string   `json:"user"`
	Action      Action   `json:"action"`
	Table       string   `json:"table"`
	Description string   `json:"description"`
	Changes     []Change `json:"changes"`
}

// Row is one persisted change-log entry.
type Row struct {
	ChangeID    int64
	Datetime    time.Time
	User        string
	Action      Action
	Table       string
	Description string
	Content     ChangeSet
}

// encodeContent serialises cs for storage in the change row's content column.
func encodeContent(cs *ChangeSet) (string, errors.E) {
	b, err := json.Marshal(cs)
	if err != nil {
		return "", rerr.Data("cannot serialise changeset: %v", err)
	}
	return string(b), nil
}

func decodeContent(content string) (*ChangeSet, errors.E) {
	var cs ChangeSet
	if err := json.Unmarshal([]byte(content), &cs); err != nil {
		return nil, rerr.Data("cannot deserialise change content: %v", err)
	}
	return &cs, nil
}

// encodeCells serialises a cell-value map for a history row's
// before/after column. A nil map (Add's before, Delete's after)
// encodes as SQL NULL, represented here by a nil return.
func encodeCells(cells *ordered.Map[any]) (any, errors.E) {
	if cells == nil {
		return nil, nil
	}
	b, err := json.Marshal(cells)
	if err != nil {
		return nil, rerr.Data("cannot serialise cell map: %v", err)
	}
	return string(b), nil
}
