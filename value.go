// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies which variant of the JSON value model a [Value] holds.
type Kind uint8

const (
	// KindNull is the JSON null literal. It is the zero value of [Value].
	KindNull Kind = iota
	// KindBool is true or false.
	KindBool
	// KindNumber is a JSON number, held as a float64.
	KindNumber
	// KindString is a JSON string.
	KindString
	// KindArray is an ordered sequence of values.
	KindArray
	// KindObject is an insertion-ordered mapping from string keys to values.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is a node of a JSON tree.
//
// The zero Value is null. Values are immutable once constructed: the accessors
// that expose arrays and objects return copies, so a Value can be shared freely
// between documents and merge results.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	items []Value
	obj   *Object
}

// Member is a single key/value pair used to build an object.
type Member struct {
	Key   string
	Value Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array holding items in order.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: slices.Clone(items)}
}

// NewObject returns an object built from members in order.
// A repeated key keeps its first position and takes the last value.
func NewObject(members ...Member) Value {
	obj := newObject(len(members))
	for _, m := range members {
		obj.set(m.Key, m.Value)
	}
	return obj.value()
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsArray reports whether v is an array.
func (v Value) IsArray() bool { return v.kind == KindArray }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Items returns a copy of the elements of an array, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return slices.Clone(v.items)
}

// Len returns the number of elements of an array or members of an object,
// and zero for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return v.obj.Len()
	default:
		return 0
	}
}

// Object returns the object held by v, or nil if v is not an object.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// IsEmpty reports whether v counts as empty when arbitrating between values:
// null, a string of only whitespace, an empty array and an empty object.
// Zero and false are not empty.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	case KindArray:
		return len(v.items) == 0
	case KindObject:
		return v.obj.Len() == 0
	case KindBool, KindNumber:
		return false
	default:
		panic(fmt.Sprintf("jsonmerge: unknown kind %v", v.kind))
	}
}

// Equal reports whether v and other hold the same JSON tree.
// Object members are compared by key, regardless of order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		return slices.EqualFunc(v.items, other.items, Value.Equal)
	case KindObject:
		if v.obj.Len() != other.obj.Len() {
			return false
		}
		for i, key := range v.obj.keys {
			ov, ok := other.obj.Get(key)
			if !ok || !v.obj.values[i].Equal(ov) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("jsonmerge: unknown kind %v", v.kind))
	}
}

// String renders v as compact JSON. Values that cannot be encoded,
// such as non-finite numbers, render as a diagnostic placeholder.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%%!(%v)", err)
	}
	return string(b)
}

// Object is an insertion-ordered mapping with unique string keys.
//
// Objects reachable from a [Value] are never modified after construction.
type Object struct {
	keys   []string
	values []Value
	index  map[string]int
}

func newObject(capacity int) *Object {
	return &Object{
		keys:   make([]string, 0, capacity),
		values: make([]Value, 0, capacity),
		index:  make(map[string]int, capacity),
	}
}

// set adds key or replaces its value in place.
func (o *Object) set(key string, val Value) {
	if i, ok := o.index[key]; ok {
		o.values[i] = val
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.values = append(o.values, val)
}

func (o *Object) value() Value {
	return Value{kind: KindObject, obj: o}
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the member keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.values[i], true
}

// Has reports whether key is present. A key holding null is present.
func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.index[key]
	return ok
}

// Members returns the key/value pairs in insertion order.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	members := make([]Member, len(o.keys))
	for i, key := range o.keys {
		members[i] = Member{Key: key, Value: o.values[i]}
	}
	return members
}
