// SPDX-License-Identifier: Apache-2.0

// Package jsonmerge consolidates independently-authored JSON documents.
//
// [Merge] deep-merges documents into one, preferring non-empty values over empty
// ones and matching array items on an inferred identifier field. [CommonKeys]
// computes the key paths present in every document, including paths shared by
// all elements of an array. Both operate on the [Value] tree model and never
// fail; parsing and rendering live in [Parse], [FromAny] and [Format].
package jsonmerge

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultIdentifierKeys returns the identifier candidates used when
// [Options.IdentifierKeys] is nil: itemID, id, uuid, name.
func DefaultIdentifierKeys() []string {
	return []string{"itemID", "id", "uuid", "name"}
}

// Options configures merge behavior.
//
// The zero value is valid: default identifier keys and no logging.
type Options struct {
	// IdentifierKeys lists, in priority order, the field names that may identify
	// an item of an array of objects. The first name present in any object among
	// the array items is used to group items across documents; grouped items are
	// deep-merged.
	//
	// A nil slice selects [DefaultIdentifierKeys]. A non-nil empty slice disables
	// identifier grouping, so arrays of objects always fall back to structural
	// deduplication by key names.
	IdentifierKeys []string

	// Logger receives debug events describing how arrays were resolved.
	// Defaults to [NopLogger].
	Logger Logger
}

// Merger performs document merging with the configured options.
//
// A Merger holds no per-call state and is safe for concurrent use.
type Merger struct {
	keys   []string
	logger Logger
}

// NewMerger creates a new [Merger] with the given options.
// Returns an error if the options are invalid.
func NewMerger(opts Options) (*Merger, error) {
	keys := opts.IdentifierKeys
	if keys == nil {
		keys = DefaultIdentifierKeys()
	}
	for _, name := range keys {
		if name == "" {
			return nil, fmt.Errorf("%w: empty string in IdentifierKeys", ErrInvalidOptions)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &Merger{keys: slices.Clone(keys), logger: logger}, nil
}

// IdentifierKeys returns the identifier candidates this [Merger] uses.
func (m *Merger) IdentifierKeys() []string {
	return slices.Clone(m.keys)
}

// Merge merges values. See [Merger.Merge] for details.
func Merge(opts Options, values ...Value) (Value, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return Value{}, err
	}
	return m.Merge(values...), nil
}

// MergeJSON parses JSON documents, merges them and renders the result as
// indented JSON, keeping object keys in first-seen order.
//
// Blank documents are skipped. If any document is malformed, the error
// reports every malformed document and nothing is merged.
func MergeJSON(opts Options, docs ...[]byte) ([]byte, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	values, err := ParseDocuments(docs...)
	if err != nil {
		return nil, err
	}
	return Format(m.Merge(values...), "  ")
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
//
// Documents are unmarshaled into an any, converted with [FromAny], merged with
// [Merger.Merge], then converted back with [Value.Interface] and marshaled.
// Works with any serialization format (YAML, JSON, TOML, etc.) whose decoder
// produces maps, slices and scalars. Key order follows the decoder: plain Go maps
// are visited in sorted key order.
//
// Blank documents are skipped. With no documents left, the empty object is marshaled.
func MergeMarshal(
	opts Options,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	docs ...[]byte,
) ([]byte, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}

	values := make([]Value, 0, len(docs))
	for i, doc := range docs {
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		var current any
		if err := unmarshal(doc, &current); err != nil {
			return nil, &MalformedInputError{Err: err, DocIndex: i}
		}
		v, err := FromAny(current)
		if err != nil {
			return nil, fmt.Errorf("document at position %d: %w", i, err)
		}
		values = append(values, v)
	}

	return marshal(m.Merge(values...).Interface())
}

// Merge reduces values, in priority order, into a single value.
//
//   - No values merge to an empty object.
//   - If any value is an array, only the arrays are considered: their items are
//     pooled and resolved as described below. Other values at the same position
//     are dropped.
//   - Otherwise, if any value is an object, the result is an object holding the
//     union of keys in first-seen order. Each key maps to the merge of the values
//     found under it in the objects that have it. A missing key is not the same
//     as an empty value.
//   - Otherwise the first non-empty value wins, or the first value if all are empty.
//
// Pooled array items are grouped by the first identifier key present in any
// object item. Items sharing an identifier value are merged together; items
// without one (or with an empty one) follow the groups unchanged. If no
// identifier key is present, object items that have the same set of key names
// are folded pairwise, later non-empty values winning, and appended after the
// non-object items.
//
// Inputs are never modified.
func (m *Merger) Merge(values ...Value) Value {
	s := &mergeState{Merger: m, logging: m.hasLogger()}
	return s.merge(values)
}

// hasLogger reports whether debug events have a receiver. Paths are only
// rendered when they do.
func (m *Merger) hasLogger() bool {
	switch m.logger.(type) {
	case NopLogger, *NopLogger:
		return false
	default:
		return true
	}
}

// mergeState tracks the current document path for log events.
type mergeState struct {
	*Merger
	path    []string
	logging bool
}

func (s *mergeState) push(segment string) {
	s.path = append(s.path, segment)
}

func (s *mergeState) pop() {
	if len(s.path) == 0 {
		panic("unbalanced jsonmerge.mergeState pop")
	}
	s.path = s.path[:len(s.path)-1]
}

func (s *mergeState) where() string {
	var b strings.Builder
	for _, segment := range s.path {
		if b.Len() > 0 && !strings.HasPrefix(segment, "[") {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	if b.Len() == 0 {
		return "(root)"
	}
	return b.String()
}

func (s *mergeState) merge(values []Value) Value {
	if len(values) == 0 {
		return newObject(0).value()
	}

	var arrays []Value
	hasObject := false
	for _, v := range values {
		switch v.Kind() {
		case KindArray:
			arrays = append(arrays, v)
		case KindObject:
			hasObject = true
		case KindNull, KindBool, KindNumber, KindString:
		}
	}

	if len(arrays) > 0 {
		if dropped := len(values) - len(arrays); dropped > 0 && s.logging {
			s.logger.Debug("dropping non-array values next to arrays",
				"path", s.where(), "dropped", dropped)
		}
		return s.mergeArrays(arrays)
	}
	if hasObject {
		return s.mergeObjects(values)
	}
	return firstNonEmpty(values)
}

func firstNonEmpty(values []Value) Value {
	for _, v := range values {
		if !v.IsEmpty() {
			return v
		}
	}
	return values[0]
}

func (s *mergeState) mergeObjects(values []Value) Value {
	var keys []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, key := range v.Object().Keys() {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
	}

	result := newObject(len(keys))
	for _, key := range keys {
		var forKey []Value
		for _, v := range values {
			if val, ok := v.Object().Get(key); ok {
				forKey = append(forKey, val)
			}
		}
		s.push(key)
		result.set(key, s.merge(forKey))
		s.pop()
	}
	return result.value()
}

func (s *mergeState) mergeArrays(arrays []Value) Value {
	var items []Value
	for _, a := range arrays {
		items = append(items, a.items...)
	}

	s.push("[]")
	defer s.pop()

	key := s.identifierKey(items)
	if key == "" {
		if s.logging {
			s.logger.Debug("no identifier key, deduplicating by key names",
				"path", s.where(), "items", len(items))
		}
		return Value{kind: KindArray, items: dedupByShape(items)}
	}
	if s.logging {
		s.logger.Debug("grouping array items by identifier",
			"path", s.where(), "key", key, "items", len(items))
	}
	return Value{kind: KindArray, items: s.groupByIdentifier(items, key)}
}

// identifierKey returns the first configured candidate present in any object item.
func (s *mergeState) identifierKey(items []Value) string {
	for _, candidate := range s.keys {
		for _, item := range items {
			if item.Object().Has(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func (s *mergeState) groupByIdentifier(items []Value, key string) []Value {
	var order []string
	groups := make(map[string][]Value)
	var passthrough []Value
	for _, item := range items {
		id, ok := item.Object().Get(key)
		if !ok || id.IsEmpty() {
			passthrough = append(passthrough, item)
			continue
		}
		token := identityToken(id)
		if _, seen := groups[token]; !seen {
			order = append(order, token)
		}
		groups[token] = append(groups[token], item)
	}

	result := make([]Value, 0, len(order)+len(passthrough))
	for _, token := range order {
		group := groups[token]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}
		result = append(result, s.merge(group))
	}
	return append(result, passthrough...)
}

// identityToken distinguishes identifier values by kind as well as content,
// so the number 1 and the string "1" name different items.
func identityToken(id Value) string {
	return id.Kind().String() + ":" + id.String()
}

func dedupByShape(items []Value) []Value {
	var result []Value
	var order []string
	merged := make(map[string]*Object)
	for _, item := range items {
		obj := item.Object()
		if obj == nil {
			result = append(result, item)
			continue
		}
		token := shapeToken(obj)
		prev, ok := merged[token]
		if !ok {
			order = append(order, token)
			merged[token] = obj
			continue
		}
		merged[token] = mergePair(prev, obj)
	}
	for _, token := range order {
		result = append(result, merged[token].value())
	}
	return result
}

// shapeToken identifies an object by its sorted key names only.
func shapeToken(obj *Object) string {
	keys := obj.Keys()
	slices.Sort(keys)
	quoted := make([]string, len(keys))
	for i, key := range keys {
		quoted[i] = strconv.Quote(key)
	}
	return strings.Join(quoted, ",")
}

// mergePair merges b into a key by key: nested objects merge recursively,
// otherwise b's value wins unless it is empty.
func mergePair(a, b *Object) *Object {
	result := newObject(a.Len() + b.Len())
	for i, key := range a.keys {
		av := a.values[i]
		bv, ok := b.Get(key)
		switch {
		case !ok:
			result.set(key, av)
		case av.IsObject() && bv.IsObject():
			result.set(key, mergePair(av.obj, bv.obj).value())
		case !bv.IsEmpty():
			result.set(key, bv)
		default:
			result.set(key, av)
		}
	}
	for i, key := range b.keys {
		if !a.Has(key) {
			result.set(key, b.values[i])
		}
	}
	return result
}
