// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import "github.com/cockroachdb/errors"

// Encode flattens the document into the wire shape shared with the backing
// store: "_id" plus one entry per scalar field and one nested map per
// versioned sub-map, keyed by revision strings.
func Encode(d *Document) map[string]interface{} {
	out := make(map[string]interface{}, 1+len(d.Scalars)+len(d.SubMaps))
	out[FieldID] = d.ID
	for k, v := range d.Scalars {
		out[k] = v.native()
	}
	for k, m := range d.SubMaps {
		sub := make(map[string]interface{}, len(m))
		for rev, val := range m {
			sub[rev.String()] = val
		}
		out[k] = sub
	}
	return out
}

// Decode rebuilds a document from its wire shape. Any nested map field is a
// revision-keyed sub-map; malformed revision keys or non-string sub-map
// values are corruption.
func Decode(raw map[string]interface{}) (*Document, error) {
	id, ok := raw[FieldID].(string)
	if !ok || id == "" {
		return nil, errors.Wrap(ErrCorrupt, "document without _id")
	}
	d := NewDocument(id)
	for k, v := range raw {
		if k == FieldID {
			continue
		}
		switch sub := v.(type) {
		case map[string]interface{}:
			m := make(RevisionMap, len(sub))
			for rk, rv := range sub {
				rev, err := ParseRevision(rk)
				if err != nil {
					return nil, errors.Wrapf(err, "field %q of %s", k, id)
				}
				s, ok := rv.(string)
				if !ok {
					return nil, errors.Wrapf(ErrCorrupt,
						"field %q of %s: non-string entry %v", k, id, rv)
				}
				m[rev] = s
			}
			d.SubMaps[k] = m
		default:
			val, err := valueFromNative(v)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q of %s", k, id)
			}
			d.Scalars[k] = val
		}
	}
	return d, nil
}
