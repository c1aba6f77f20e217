// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import (
	"fmt"
	"strings"

	"github.com/acornlabs/acorn/pkg/document"
)

// OpType enumerates the incremental changes an UpdateOp can carry.
type OpType int

const (
	// OpSetValue sets a scalar field.
	OpSetValue OpType = iota
	// OpRemoveValue removes a scalar field.
	OpRemoveValue
	// OpSetMapEntry sets one revision entry of a sub-map.
	OpSetMapEntry
	// OpRemoveMapEntry removes one revision entry of a sub-map.
	OpRemoveMapEntry
	// OpIncrement adds a delta to an integer scalar field.
	OpIncrement
	// OpMax raises an integer scalar field to a value if it is larger.
	OpMax
)

// Operation is one incremental change of an UpdateOp.
type Operation struct {
	Type  OpType
	Field string
	// Rev is set for map-entry operations.
	Rev document.Revision
	// Value is set for OpSetValue.
	Value document.Value
	// StrValue is set for OpSetMapEntry.
	StrValue string
	// Num is the delta for OpIncrement and the candidate for OpMax.
	Num int64
}

// CondType enumerates the preconditions an UpdateOp can require.
type CondType int

const (
	// CondExists requires a sub-map entry to be present.
	CondExists CondType = iota
	// CondNotExists requires a sub-map entry to be absent.
	CondNotExists
	// CondEquals requires a sub-map entry to hold an exact value.
	CondEquals
	// CondScalarEquals requires a scalar field to hold an exact value.
	// Comparing _modCount this way is the cheap optimistic check-and-set
	// used by the commit protocol.
	CondScalarEquals
)

// Condition is one precondition of an UpdateOp, checked atomically with its
// operations.
type Condition struct {
	Type  CondType
	Field string
	Rev   document.Revision
	// StrValue is the expected entry value for CondEquals.
	StrValue string
	// Value is the expected scalar for CondScalarEquals.
	Value document.Value
}

// UpdateOp describes an atomic change to a single document.
type UpdateOp struct {
	// ID is the key of the document to update.
	ID string
	// IsNew indicates the document is expected not to exist yet.
	IsNew bool

	Ops   []Operation
	Conds []Condition
}

// NewUpdateOp returns an empty update for the given document.
func NewUpdateOp(id string, isNew bool) *UpdateOp {
	return &UpdateOp{ID: id, IsNew: isNew}
}

// Clone returns a deep copy of the update.
func (op *UpdateOp) Clone() *UpdateOp {
	c := &UpdateOp{ID: op.ID, IsNew: op.IsNew}
	c.Ops = append([]Operation(nil), op.Ops...)
	c.Conds = append([]Condition(nil), op.Conds...)
	return c
}

// Set sets a scalar field.
func (op *UpdateOp) Set(field string, v document.Value) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpSetValue, Field: field, Value: v})
	return op
}

// RemoveField removes a scalar field.
func (op *UpdateOp) RemoveField(field string) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpRemoveValue, Field: field})
	return op
}

// SetMapEntry sets field[rev] = value.
func (op *UpdateOp) SetMapEntry(field string, rev document.Revision, value string) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpSetMapEntry, Field: field, Rev: rev, StrValue: value})
	return op
}

// RemoveMapEntry removes field[rev].
func (op *UpdateOp) RemoveMapEntry(field string, rev document.Revision) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpRemoveMapEntry, Field: field, Rev: rev})
	return op
}

// Increment adds delta to an integer scalar field.
func (op *UpdateOp) Increment(field string, delta int64) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpIncrement, Field: field, Num: delta})
	return op
}

// Max raises an integer scalar field to num if num is larger.
func (op *UpdateOp) Max(field string, num int64) *UpdateOp {
	op.Ops = append(op.Ops, Operation{Type: OpMax, Field: field, Num: num})
	return op
}

// ContainsMapEntry requires field[rev] to exist.
func (op *UpdateOp) ContainsMapEntry(field string, rev document.Revision) *UpdateOp {
	op.Conds = append(op.Conds, Condition{Type: CondExists, Field: field, Rev: rev})
	return op
}

// NotContainsMapEntry requires field[rev] to be absent.
func (op *UpdateOp) NotContainsMapEntry(field string, rev document.Revision) *UpdateOp {
	op.Conds = append(op.Conds, Condition{Type: CondNotExists, Field: field, Rev: rev})
	return op
}

// EqualsMapEntry requires field[rev] == value.
func (op *UpdateOp) EqualsMapEntry(field string, rev document.Revision, value string) *UpdateOp {
	op.Conds = append(op.Conds, Condition{Type: CondEquals, Field: field, Rev: rev, StrValue: value})
	return op
}

// EqualsScalar requires field == value.
func (op *UpdateOp) EqualsScalar(field string, v document.Value) *UpdateOp {
	op.Conds = append(op.Conds, Condition{Type: CondScalarEquals, Field: field, Value: v})
	return op
}

// HasConditions returns whether the update carries preconditions.
func (op *UpdateOp) HasConditions() bool { return len(op.Conds) > 0 }

func (op *UpdateOp) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "update %s (new=%t, %d ops, %d conds)",
		op.ID, op.IsNew, len(op.Ops), len(op.Conds))
	return sb.String()
}
