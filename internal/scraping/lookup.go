package scraping

import "strings"

// lookup walks a decoded JSON object along path. The bool is false when
// any step is absent or not an object; a present JSON null returns (nil, true).
func lookup(tree map[string]any, path ...string) (any, bool) {
	var cur any = tree
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// lookupValue returns the value at path, or nil when absent.
func lookupValue(tree map[string]any, path ...string) any {
	v, _ := lookup(tree, path...)
	return v
}

// lookupString returns the string at path, or nil when absent or not a string.
func lookupString(tree map[string]any, path ...string) *string {
	v, ok := lookup(tree, path...)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// lookupList returns the array at path, or nil.
func lookupList(tree map[string]any, path ...string) []any {
	v, _ := lookup(tree, path...)
	list, _ := v.([]any)
	return list
}

// listObject returns list[i] as an object, or false when out of range or not an object.
func listObject(list []any, i int) (map[string]any, bool) {
	if i < 0 || i >= len(list) {
		return nil, false
	}
	obj, ok := list[i].(map[string]any)
	return obj, ok
}

// findObject returns the first object in list whose key equals want, ignoring case.
func findObject(list []any, key, want string) (map[string]any, bool) {
	for i := range list {
		obj, ok := listObject(list, i)
		if !ok {
			continue
		}
		if s, ok := obj[key].(string); ok && strings.EqualFold(s, want) {
			return obj, true
		}
	}
	return nil, false
}
