// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package docstore

import "github.com/acornlabs/acorn/pkg/document"

// checkConditions evaluates op's preconditions against doc. A nil doc
// satisfies only CondNotExists conditions.
func checkConditions(doc *document.Document, op *UpdateOp) bool {
	for _, cond := range op.Conds {
		switch cond.Type {
		case CondExists:
			if doc == nil {
				return false
			}
			if _, ok := doc.SubMaps[cond.Field][cond.Rev]; !ok {
				return false
			}
		case CondNotExists:
			if doc == nil {
				continue
			}
			if _, ok := doc.SubMaps[cond.Field][cond.Rev]; ok {
				return false
			}
		case CondEquals:
			if doc == nil {
				return false
			}
			v, ok := doc.SubMaps[cond.Field][cond.Rev]
			if !ok || v != cond.StrValue {
				return false
			}
		case CondScalarEquals:
			if doc == nil {
				return false
			}
			v, ok := doc.Scalars[cond.Field]
			if !ok || !v.Equal(cond.Value) {
				return false
			}
		}
	}
	return true
}

// applyOps applies op's operations to doc in order and bumps _modCount.
func applyOps(doc *document.Document, op *UpdateOp) {
	for _, o := range op.Ops {
		switch o.Type {
		case OpSetValue:
			doc.Scalars[o.Field] = o.Value
		case OpRemoveValue:
			delete(doc.Scalars, o.Field)
		case OpSetMapEntry:
			doc.SubMap(o.Field)[o.Rev] = o.StrValue
		case OpRemoveMapEntry:
			if m, ok := doc.SubMaps[o.Field]; ok {
				delete(m, o.Rev)
				if len(m) == 0 {
					delete(doc.SubMaps, o.Field)
				}
			}
		case OpIncrement:
			cur, _ := doc.Scalars[o.Field].AsInt()
			doc.Scalars[o.Field] = document.IntValue(cur + o.Num)
		case OpMax:
			cur, ok := doc.Scalars[o.Field].AsInt()
			if !ok || o.Num > cur {
				doc.Scalars[o.Field] = document.IntValue(o.Num)
			}
		}
	}
	doc.Scalars[document.FieldModCount] = document.IntValue(doc.ModCount() + 1)
}
