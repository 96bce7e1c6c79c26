// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// CommonKeys returns, in sorted order, the key paths present in every value.
//
// With no values the result is empty; with one value it is [KeyPaths] of that
// value. Paths use dots between object keys and brackets for array positions:
// "a.b", "items[0].id". A path of the form "items[].id" means every element of
// the items array is an object with an id key.
func CommonKeys(values ...Value) []string {
	switch len(values) {
	case 0:
		return []string{}
	case 1:
		return KeyPaths(values[0])
	}

	common := keyPaths(values[0], "")
	for _, v := range values[1:] {
		common = intersect(common, keyPaths(v, ""))
	}
	return sortedKeys(common)
}

// CommonKeysJSON parses JSON documents and returns their [CommonKeys].
// Blank documents are skipped; malformed ones are reported as for [ParseDocuments].
func CommonKeysJSON(docs ...[]byte) ([]string, error) {
	values, err := ParseDocuments(docs...)
	if err != nil {
		return nil, err
	}
	return CommonKeys(values...), nil
}

// KeyPaths returns, in sorted order, every key path reachable in v.
func KeyPaths(v Value) []string {
	return sortedKeys(keyPaths(v, ""))
}

// FormatKeys renders key paths one per line.
func FormatKeys(keys []string) string {
	return strings.Join(keys, "\n")
}

type keySet map[string]struct{}

func keyPaths(v Value, prefix string) keySet {
	keys := make(keySet)
	collectKeyPaths(v, prefix, keys)
	return keys
}

func collectKeyPaths(v Value, prefix string, into keySet) {
	switch v.Kind() {
	case KindObject:
		obj := v.obj
		for i, key := range obj.keys {
			child := key
			if prefix != "" {
				child = prefix + "." + key
			}
			into[child] = struct{}{}
			collectKeyPaths(obj.values[i], child, into)
		}
	case KindArray:
		allObjects := len(v.items) > 0
		for i, item := range v.items {
			if !item.IsObject() {
				allObjects = false
				continue
			}
			collectKeyPaths(item, prefix+"["+strconv.Itoa(i)+"]", into)
		}
		if !allObjects {
			return
		}
		shared := keyPaths(v.items[0], "")
		for _, item := range v.items[1:] {
			shared = intersect(shared, keyPaths(item, ""))
		}
		for key := range shared {
			into[prefix+"[]."+key] = struct{}{}
		}
	case KindNull, KindBool, KindNumber, KindString:
	}
}

func intersect(a, b keySet) keySet {
	result := make(keySet, min(len(a), len(b)))
	for key := range a {
		if _, ok := b[key]; ok {
			result[key] = struct{}{}
		}
	}
	return result
}

func sortedKeys(keys keySet) []string {
	sorted := slices.Sorted(maps.Keys(keys))
	if sorted == nil {
		return []string{}
	}
	return sorted
}
