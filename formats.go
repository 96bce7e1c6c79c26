// SPDX-License-Identifier: Apache-2.0

package jsonmerge

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// ParseYAML parses a single YAML document. Mapping keys keep their document order.
// Syntax errors are reported as a [*MalformedInputError]; values with no JSON
// counterpart, such as .nan, as an [*UnsupportedValueError].
func ParseYAML(data []byte) (Value, error) {
	var doc any
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return Value{}, &MalformedInputError{Err: err}
	}
	return FromAny(doc)
}

// ParseTOML parses a TOML document. Table keys are ordered by name.
func ParseTOML(data []byte) (Value, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Value{}, &MalformedInputError{Err: err}
	}
	return FromAny(doc)
}

// FormatYAML renders v as YAML, keeping object key order.
func FormatYAML(v Value) ([]byte, error) {
	return yaml.Marshal(v.MapSlice())
}

// FormatTOML renders v as TOML. Only objects can be TOML documents.
func FormatTOML(v Value) ([]byte, error) {
	if !v.IsObject() {
		return nil, fmt.Errorf("TOML needs an object at the root, got %s", v.Kind())
	}
	return toml.Marshal(v.Interface())
}
