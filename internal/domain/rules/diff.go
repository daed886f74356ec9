package rules

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Change records one configuration key that differs between two versions.
// A key present in only one version counts as changed; the missing side is
// rendered as the empty string.
type Change struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Diff structurally compares two configurations and returns the changed
// keys in sorted order. Identical configurations yield an empty list.
func Diff(a, b Config) []Change {
	flatA := flatten(a)
	flatB := flatten(b)

	keys := make(map[string]struct{}, len(flatA)+len(flatB))
	for k := range flatA {
		keys[k] = struct{}{}
	}
	for k := range flatB {
		keys[k] = struct{}{}
	}

	changes := make([]Change, 0)
	for k := range keys {
		oldV, inA := flatA[k]
		newV, inB := flatB[k]
		if inA && inB && oldV == newV {
			continue
		}
		changes = append(changes, Change{Key: k, OldValue: oldV, NewValue: newV})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

// Impact is the size of a diff, surfaced so operators can flag sweeping
// rule changes. The store never blocks activation on it.
func Impact(changes []Change) int { return len(changes) }

// flatten renders a Config as dotted leaf keys mapped to printed values,
// via its JSON form so the diff tracks the closed schema automatically.
func flatten(c Config) map[string]string {
	raw, err := json.Marshal(c)
	if err != nil {
		// Config is plain data; marshal cannot fail on valid values.
		return map[string]string{}
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string)
	flattenInto(out, "", tree)
	return out
}

func flattenInto(out map[string]string, prefix string, node interface{}) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, child)
		}
	case []interface{}:
		for i, child := range v {
			flattenInto(out, fmt.Sprintf("%s.%d", prefix, i), child)
		}
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}
