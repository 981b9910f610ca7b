package config

// Configuration values decoded from yaml form a small closed tree: maps,
// lists, and scalars. Merging walks that tree with a fixed policy per kind
// instead of reflecting over arbitrary objects.

// MergeMaps deep-merges overlay onto base and returns a new map. Neither
// input is mutated.
func MergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range overlay {
		existing, ok := out[k]
		if !ok {
			out[k] = cloneValue(v)
			continue
		}
		out[k] = mergeValue(existing, v)
	}
	return out
}

// mergeValue merges one overlay value onto a base value:
// map + map deep-merges, list + list unions preserving base order,
// anything else replaces.
func mergeValue(base, overlay interface{}) interface{} {
	baseMap, baseIsMap := asMap(base)
	overlayMap, overlayIsMap := asMap(overlay)
	if baseIsMap && overlayIsMap {
		return MergeMaps(baseMap, overlayMap)
	}

	baseList, baseIsList := base.([]interface{})
	overlayList, overlayIsList := overlay.([]interface{})
	if baseIsList && overlayIsList {
		return mergeLists(baseList, overlayList)
	}

	return cloneValue(overlay)
}

// mergeLists appends overlay items not already present in base
func mergeLists(base, overlay []interface{}) []interface{} {
	out := make([]interface{}, 0, len(base)+len(overlay))
	for _, v := range base {
		out = append(out, cloneValue(v))
	}
	for _, v := range overlay {
		if !containsScalar(base, v) {
			out = append(out, cloneValue(v))
		}
	}
	return out
}

func containsScalar(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// cloneValue copies the value tree so merged output never aliases inputs
func cloneValue(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, mv := range m {
			out[k] = cloneValue(mv)
		}
		return out
	}
	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, lv := range list {
			out[i] = cloneValue(lv)
		}
		return out
	}
	return v
}

// asMap normalizes the two map shapes yaml decoding can produce
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, mv := range m {
			if ks, ok := k.(string); ok {
				out[ks] = mv
			}
		}
		return out, true
	default:
		return nil, false
	}
}
