// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/pretty"
)

// MarshalJSON implements json.Marshaler. Output is compact, object members
// appear in insertion order and HTML characters are not escaped.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		if v.b {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case KindNumber:
		return appendEncoded(buf, v.n)
	case KindString:
		return appendEncoded(buf, v.s)
	case KindArray:
		buf = append(buf, '[')
		for i, item := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = item.appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		buf = append(buf, '{')
		for i, key := range v.obj.keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			if buf, err = appendEncoded(buf, key); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = v.obj.values[i].appendJSON(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, fmt.Errorf("jsonmerge: unknown kind %v", v.kind)
	}
}

func appendEncoded(buf []byte, scalar any) ([]byte, error) {
	b, err := json.MarshalWithOption(scalar, json.DisableHTMLEscape())
	if err != nil {
		return nil, err
	}
	return append(buf, b...), nil
}

// Format renders v as JSON indented by indent, one member or element per line.
// Object members keep their insertion order.
func Format(v Value, indent string) ([]byte, error) {
	compact, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(compact, &pretty.Options{
		Width:    0,
		Indent:   indent,
		SortKeys: false,
	}), nil
}

// Decode converts v into a T by way of its JSON encoding.
func Decode[T any](v Value) (T, error) {
	var out T
	data, err := v.MarshalJSON()
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("cannot decode merged value into %T: %w", out, err)
	}
	return out, nil
}

// MergeAs merges values with m and decodes the result into a T.
func MergeAs[T any](m *Merger, values ...Value) (T, error) {
	return Decode[T](m.Merge(values...))
}
