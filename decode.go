// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/tidwall/gjson"
)

// DefaultMaxDepth is the nesting limit applied when [ParseOptions.MaxDepth] is zero.
const DefaultMaxDepth = 10000

var errInvalidJSON = errors.New("invalid JSON")

// ParseOptions configures [ParseWithOptions].
type ParseOptions struct {
	// MaxDepth bounds how deeply arrays and objects may nest.
	// Zero selects [DefaultMaxDepth]; a negative value disables the limit.
	MaxDepth int
}

// Parse parses a single JSON document. Object keys keep their document order;
// a key repeated within one object keeps its first position and its last value.
func Parse(data []byte) (Value, error) {
	return ParseWithOptions(data, ParseOptions{})
}

// ParseWithOptions parses a single JSON document with the given options.
// Syntax errors are reported as a [*MalformedInputError].
func ParseWithOptions(data []byte, opts ParseOptions) (Value, error) {
	v, err := parse(data, opts)
	if err != nil {
		return Value{}, &MalformedInputError{Err: err}
	}
	return v, nil
}

// ParseDocuments parses each document in order, skipping blank ones.
//
// Every malformed document is reported: the returned error joins one
// [*MalformedInputError] per failure, carrying the document's position in docs.
// The values that did parse are returned alongside the error so callers can
// decide whether to proceed with the valid subset.
func ParseDocuments(docs ...[]byte) ([]Value, error) {
	values := make([]Value, 0, len(docs))
	var errs []error
	for i, doc := range docs {
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		v, err := parse(doc, ParseOptions{})
		if err != nil {
			errs = append(errs, &MalformedInputError{Err: err, DocIndex: i})
			continue
		}
		values = append(values, v)
	}
	return values, errors.Join(errs...)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func parse(data []byte, opts ParseOptions) (Value, error) {
	if !gjson.ValidBytes(data) {
		// Run the decoder anyway for a positioned error message.
		var scratch any
		if err := json.Unmarshal(data, &scratch); err != nil {
			return Value{}, err
		}
		return Value{}, errInvalidJSON
	}

	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	d := &decoder{dec: dec, maxDepth: maxDepth}
	return d.value(0)
}

type decoder struct {
	dec      *json.Decoder
	maxDepth int
}

func (d *decoder) value(depth int) (Value, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if d.maxDepth > 0 && depth >= d.maxDepth {
			return Value{}, &DepthError{MaxDepth: d.maxDepth}
		}
		switch t {
		case '{':
			return d.object(depth + 1)
		case '[':
			return d.array(depth + 1)
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case string:
		return String(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %s: %w", t, err)
		}
		return Number(n), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

func (d *decoder) object(depth int) (Value, error) {
	obj := newObject(0)
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected object key, got %v", tok)
		}
		val, err := d.value(depth)
		if err != nil {
			return Value{}, err
		}
		obj.set(key, val)
	}
	if _, err := d.dec.Token(); err != nil {
		return Value{}, err
	}
	return obj.value(), nil
}

func (d *decoder) array(depth int) (Value, error) {
	items := []Value{}
	for d.dec.More() {
		val, err := d.value(depth)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
	if _, err := d.dec.Token(); err != nil {
		return Value{}, err
	}
	return Value{kind: KindArray, items: items}, nil
}

// FromAny converts a tree produced by a generic decoder into a [Value].
//
// Supported inputs are nil, bool, strings, Go numeric types, json.Number,
// time.Time (rendered as RFC 3339), []any, []map[string]any, map[string]any,
// map[any]any and yaml.MapSlice. Members of Go maps are ordered by key, while a
// yaml.MapSlice keeps its order. Any other type, and non-finite numbers, yield
// an [*UnsupportedValueError].
func FromAny(x any) (Value, error) {
	return fromAny(x, "")
}

func fromAny(x any, path string) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return finite(t, x, path)
	case float32:
		return finite(float64(t), x, path)
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, &UnsupportedValueError{Value: x, Path: path}
		}
		return finite(n, x, path)
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromAny(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindArray, items: items}, nil
	case []map[string]any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromAny(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindArray, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for key := range t {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		obj := newObject(len(keys))
		for _, key := range keys {
			v, err := fromAny(t[key], joinPath(path, key))
			if err != nil {
				return Value{}, err
			}
			obj.set(key, v)
		}
		return obj.value(), nil
	case map[any]any:
		byName := make(map[string]any, len(t))
		for key, val := range t {
			byName[fmt.Sprint(key)] = val
		}
		return fromAny(byName, path)
	case yaml.MapSlice:
		obj := newObject(len(t))
		for _, item := range t {
			key := fmt.Sprint(item.Key)
			v, err := fromAny(item.Value, joinPath(path, key))
			if err != nil {
				return Value{}, err
			}
			obj.set(key, v)
		}
		return obj.value(), nil
	default:
		return Value{}, &UnsupportedValueError{Value: x, Path: path}
	}
}

func finite(n float64, x any, path string) (Value, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Value{}, &UnsupportedValueError{Value: x, Path: path}
	}
	return Number(n), nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Interface converts v into plain Go values: nil, bool, float64, string,
// []any and map[string]any. Object key order is not retained.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		items := make([]any, len(v.items))
		for i, item := range v.items {
			items[i] = item.Interface()
		}
		return items
	case KindObject:
		m := make(map[string]any, v.obj.Len())
		for i, key := range v.obj.keys {
			m[key] = v.obj.values[i].Interface()
		}
		return m
	default:
		panic(fmt.Sprintf("jsonmerge: unknown kind %v", v.kind))
	}
}

// MapSlice converts v into plain Go values like [Value.Interface], except that
// objects become yaml.MapSlice so that YAML output keeps key order.
func (v Value) MapSlice() any {
	switch v.kind {
	case KindArray:
		items := make([]any, len(v.items))
		for i, item := range v.items {
			items[i] = item.MapSlice()
		}
		return items
	case KindObject:
		ms := make(yaml.MapSlice, 0, v.obj.Len())
		for i, key := range v.obj.keys {
			ms = append(ms, yaml.MapItem{Key: key, Value: v.obj.values[i].MapSlice()})
		}
		return ms
	case KindNull, KindBool, KindNumber, KindString:
		return v.Interface()
	default:
		panic(fmt.Sprintf("jsonmerge: unknown kind %v", v.kind))
	}
}
