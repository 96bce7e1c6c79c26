// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/jsonmerge"
)

// KRM annotation constants.
const (
	// AnnotationBase is the base prefix for all jsonmerge annotations.
	AnnotationBase = "config.jsonmerge.io/"

	// AnnotationID is a correlation key grouping ConfigMaps for a single merge operation.
	AnnotationID = AnnotationBase + "id"

	// AnnotationOrder defines the merge order for ConfigMaps with the same ID.
	// Lower numbers come first. The ConfigMap with order=0 is the base.
	AnnotationOrder = AnnotationBase + "order"

	// AnnotationFinalName specifies the metadata.name of the merged ConfigMap.
	// Must be present on the base ConfigMap.
	AnnotationFinalName = AnnotationBase + "final-name"

	// AnnotationKeys lists comma-separated identifier keys for array items.
	// Read from the base ConfigMap only. An empty value disables identifier grouping.
	AnnotationKeys = AnnotationBase + "keys"

	// AnnotationReportCommon, set to "true" on the base, adds a common-keys
	// annotation for every data key that was merged from two or more payloads.
	AnnotationReportCommon = AnnotationBase + "report-common"

	// AnnotationCommonKeys prefixes the per-data-key report, e.g.
	// config.jsonmerge.io/common-keys.settings.json.
	AnnotationCommonKeys = AnnotationBase + "common-keys"
)

// TypeMeta describes an individual object in a ResourceList.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta is metadata that all persisted resources must have.
type ObjectMeta struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Namespace   string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// ConfigMap represents a Kubernetes ConfigMap resource.
type ConfigMap struct {
	TypeMeta   `yaml:",inline" json:",inline"`
	ObjectMeta `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Data       map[string]string `yaml:"data,omitempty" json:"data,omitempty"`
}

// ResourceList is the input/output format for KRM functions.
// See: https://github.com/kubernetes-sigs/kustomize/blob/master/cmd/config/docs/api-conventions/functions-spec.md
type ResourceList struct {
	APIVersion string           `yaml:"apiVersion" json:"apiVersion"`
	Kind       string           `yaml:"kind" json:"kind"`
	Items      []map[string]any `yaml:"items" json:"items"`
}

// configMapGroup is a set of ConfigMaps sharing an ID, sorted by order.
type configMapGroup struct {
	id           string
	configMaps   []*orderedConfigMap
	merger       *jsonmerge.Merger
	reportCommon bool
}

type orderedConfigMap struct {
	order     int
	configMap ConfigMap
}

func (cm *orderedConfigMap) annotation(key string) (string, bool) {
	value, ok := cm.configMap.Annotations[key]
	return value, ok
}

// Run executes the KRM function, reading a ResourceList from in and writing the result to out.
func Run(in io.Reader, out io.Writer) error {
	rl, err := readResourceList(in)
	if err != nil {
		return fmt.Errorf("failed to read ResourceList: %w", err)
	}

	groups, passthrough, err := groupConfigMaps(rl)
	if err != nil {
		return fmt.Errorf("failed to group ConfigMaps: %w", err)
	}

	merged := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		item, err := mergeConfigMapGroup(group)
		if err != nil {
			return fmt.Errorf("failed to merge ConfigMap group %q: %w", group.id, err)
		}
		merged = append(merged, item)
	}

	outputRL := ResourceList{
		APIVersion: "v1",
		Kind:       "ResourceList",
		Items:      append(passthrough, merged...),
	}
	if err := writeResourceList(out, outputRL); err != nil {
		return fmt.Errorf("failed to write ResourceList: %w", err)
	}
	return nil
}

func readResourceList(r io.Reader) (*ResourceList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var rl ResourceList
	if err := yaml.Unmarshal(data, &rl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ResourceList: %w", err)
	}
	return &rl, nil
}

func writeResourceList(w io.Writer, rl ResourceList) error {
	data, err := yaml.Marshal(rl)
	if err != nil {
		return fmt.Errorf("failed to marshal ResourceList: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// groupConfigMaps separates annotated ConfigMaps from passthrough resources.
// Groups are returned sorted by ID so output is stable.
func groupConfigMaps(rl *ResourceList) ([]*configMapGroup, []map[string]any, error) {
	byID := make(map[string]*configMapGroup)
	var passthrough []map[string]any

	for _, item := range rl.Items {
		cm, isConfigMap, err := parseConfigMap(item)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse resource: %w", err)
		}
		id := cm.Annotations[AnnotationID]
		if !isConfigMap || id == "" {
			passthrough = append(passthrough, item)
			continue
		}

		order, err := parseOrder(cm)
		if err != nil {
			return nil, nil, fmt.Errorf("ConfigMap %q: %w", cm.Name, err)
		}

		group := byID[id]
		if group == nil {
			group = &configMapGroup{id: id}
			byID[id] = group
		}
		group.configMaps = append(group.configMaps, &orderedConfigMap{order: order, configMap: cm})
	}

	groups := make([]*configMapGroup, 0, len(byID))
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		group := byID[id]
		if err := prepareGroup(group); err != nil {
			return nil, nil, fmt.Errorf("ConfigMap group %q: %w", id, err)
		}
		groups = append(groups, group)
	}
	return groups, passthrough, nil
}

// parseConfigMap converts a resource item into a ConfigMap when its kind matches.
func parseConfigMap(item map[string]any) (ConfigMap, bool, error) {
	apiVersion, _ := item["apiVersion"].(string)
	kind, _ := item["kind"].(string)
	if kind != "ConfigMap" {
		return ConfigMap{}, false, nil
	}

	data, err := yaml.Marshal(item)
	if err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to marshal item: %w", err)
	}
	var cm ConfigMap
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return ConfigMap{}, false, fmt.Errorf("failed to unmarshal ConfigMap: %w", err)
	}

	if cm.APIVersion == "" {
		cm.APIVersion = apiVersion
	}
	if cm.Kind == "" {
		cm.Kind = kind
	}
	return cm, true, nil
}

func parseOrder(cm ConfigMap) (int, error) {
	value := cm.Annotations[AnnotationOrder]
	if value == "" {
		return 0, fmt.Errorf("missing required annotation %q", AnnotationOrder)
	}
	order, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %q annotation: %w", AnnotationOrder, err)
	}
	return order, nil
}

// parseIdentifierKeys reads the keys annotation. Absent means the library
// defaults; present but empty disables identifier grouping.
func parseIdentifierKeys(value string, ok bool) []string {
	if !ok {
		return nil
	}
	keys := []string{}
	if strings.TrimSpace(value) == "" {
		return keys
	}
	for _, key := range strings.Split(value, ",") {
		keys = append(keys, strings.TrimSpace(key))
	}
	return keys
}

// prepareGroup sorts a group by order, validates the base and builds its merger.
func prepareGroup(group *configMapGroup) error {
	slices.SortStableFunc(group.configMaps, func(a, b *orderedConfigMap) int {
		return cmp.Compare(a.order, b.order)
	})

	if len(group.configMaps) == 0 {
		return fmt.Errorf("empty ConfigMap group")
	}
	base := group.configMaps[0]
	if base.order != 0 {
		return fmt.Errorf("no base ConfigMap with order=0 (lowest order is %d)", base.order)
	}
	if len(group.configMaps) > 1 && group.configMaps[1].order == 0 {
		return fmt.Errorf("ConfigMaps %q and %q both have order=0",
			base.configMap.Name, group.configMaps[1].configMap.Name)
	}
	if name, _ := base.annotation(AnnotationFinalName); name == "" {
		return fmt.Errorf("base ConfigMap %q missing required annotation %q", base.configMap.Name, AnnotationFinalName)
	}

	merger, err := jsonmerge.NewMerger(jsonmerge.Options{
		IdentifierKeys: parseIdentifierKeys(base.annotation(AnnotationKeys)),
	})
	if err != nil {
		return fmt.Errorf("invalid %q annotation: %w", AnnotationKeys, err)
	}
	group.merger = merger

	if value, ok := base.annotation(AnnotationReportCommon); ok {
		report, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %q annotation: %w", AnnotationReportCommon, err)
		}
		group.reportCommon = report
	}
	return nil
}

// mergeConfigMapGroup merges every data key of a group into one ConfigMap.
func mergeConfigMapGroup(group *configMapGroup) (map[string]any, error) {
	base := group.configMaps[0]

	allKeys := make(map[string]struct{})
	for _, cm := range group.configMaps {
		for key := range cm.configMap.Data {
			allKeys[key] = struct{}{}
		}
	}

	annotations := filterJSONMergeAnnotations(base.configMap.Annotations)
	mergedData := make(map[string]string)
	for _, dataKey := range slices.Sorted(maps.Keys(allKeys)) {
		result, err := mergeDataKey(group, dataKey)
		if err != nil {
			return nil, fmt.Errorf("failed to merge data key %q: %w", dataKey, err)
		}
		if result.data != "" {
			mergedData[dataKey] = result.data
		}
		if group.reportCommon && result.commonKeys != nil {
			if annotations == nil {
				annotations = make(map[string]string)
			}
			annotations[AnnotationCommonKeys+"."+dataKey] = jsonmerge.FormatKeys(result.commonKeys)
		}
	}

	finalName, _ := base.annotation(AnnotationFinalName)
	result := ConfigMap{
		TypeMeta: TypeMeta{
			APIVersion: "v1",
			Kind:       "ConfigMap",
		},
		ObjectMeta: ObjectMeta{
			Name:        finalName,
			Namespace:   base.configMap.Namespace,
			Annotations: annotations,
			Labels:      base.configMap.Labels,
		},
		Data: mergedData,
	}

	data, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged ConfigMap: %w", err)
	}
	var resultMap map[string]any
	if err := yaml.Unmarshal(data, &resultMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged ConfigMap: %w", err)
	}
	return resultMap, nil
}

type dataKeyResult struct {
	data       string
	commonKeys []string // nil unless two or more payloads were merged
}

// mergeDataKey merges one data key across the group. Every payload goes into
// a single merge call so identifier groups span all of them.
func mergeDataKey(group *configMapGroup, dataKey string) (dataKeyResult, error) {
	var payloads []string
	var names []string
	for _, cm := range group.configMaps {
		if value := cm.configMap.Data[dataKey]; strings.TrimSpace(value) != "" {
			payloads = append(payloads, value)
			names = append(names, cm.configMap.Name)
		}
	}

	switch len(payloads) {
	case 0:
		return dataKeyResult{}, nil
	case 1:
		return dataKeyResult{data: payloads[0]}, nil
	}

	format := detectFormatFromKey(dataKey)
	values := make([]jsonmerge.Value, 0, len(payloads))
	var errs []error
	for i, payload := range payloads {
		v, err := format.parse([]byte(payload))
		if err != nil {
			errs = append(errs, fmt.Errorf("ConfigMap %q (format: %s): %w", names[i], format.name, err))
			continue
		}
		values = append(values, v)
	}
	if len(errs) > 0 {
		return dataKeyResult{}, errors.Join(errs...)
	}

	merged := group.merger.Merge(values...)
	data, err := format.marshal(merged)
	if err != nil {
		return dataKeyResult{}, fmt.Errorf("failed to marshal as %s: %w", format.name, err)
	}

	result := dataKeyResult{data: string(data)}
	if group.reportCommon {
		result.commonKeys = jsonmerge.CommonKeys(values...)
	}
	return result, nil
}

// payloadFormat pairs a parser and a printer for one data key extension.
type payloadFormat struct {
	name    string
	parse   func([]byte) (jsonmerge.Value, error)
	marshal func(jsonmerge.Value) ([]byte, error)
}

var (
	jsonFormat = payloadFormat{
		name:  "json",
		parse: jsonmerge.Parse,
		marshal: func(v jsonmerge.Value) ([]byte, error) {
			return jsonmerge.Format(v, "  ")
		},
	}
	yamlFormat = payloadFormat{
		name:    "yaml",
		parse:   jsonmerge.ParseYAML,
		marshal: jsonmerge.FormatYAML,
	}
	tomlFormat = payloadFormat{
		name:    "toml",
		parse:   jsonmerge.ParseTOML,
		marshal: jsonmerge.FormatTOML,
	}
)

// detectFormatFromKey picks the payload format from the data key name
// (e.g. "settings.yaml" is YAML). Keys without a known extension are JSON.
func detectFormatFromKey(dataKey string) payloadFormat {
	switch strings.ToLower(filepath.Ext(dataKey)) {
	case ".yaml", ".yml":
		return yamlFormat
	case ".toml":
		return tomlFormat
	default:
		return jsonFormat
	}
}

// filterJSONMergeAnnotations removes config.jsonmerge.io annotations from a map.
func filterJSONMergeAnnotations(annotations map[string]string) map[string]string {
	if annotations == nil {
		return nil
	}

	filtered := make(map[string]string)
	for key, value := range annotations {
		if !strings.HasPrefix(key, AnnotationBase) {
			filtered[key] = value
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}
