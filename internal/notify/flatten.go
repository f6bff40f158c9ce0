package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Jeffail/gabs"
)

// FlattenDetail reduces a backend error detail of any supported shape to a
// single human-readable string. Backends return validation details as a bare
// string, a list of objects (each with msg/loc fields), or an object map;
// all three collapse to one line here.
func FlattenDetail(detail interface{}) string {
	switch v := detail.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case []byte:
		parsed, err := gabs.ParseJSON(v)
		if err != nil {
			return strings.TrimSpace(string(v))
		}
		return flattenContainer(parsed)
	}

	parsed, err := gabs.Consume(detail)
	if err != nil {
		return strings.TrimSpace(fmt.Sprintf("%v", detail))
	}
	return flattenContainer(parsed)
}

func flattenContainer(c *gabs.Container) string {
	switch data := c.Data().(type) {
	case string:
		return strings.TrimSpace(data)
	case []interface{}:
		parts := make([]string, 0, len(data))
		if children, err := c.Children(); err == nil {
			for _, child := range children {
				if s := flattenEntry(child); s != "" {
					parts = append(parts, s)
				}
			}
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		return flattenMap(data)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", data))
	}
}

// flattenEntry renders one element of a list-of-objects detail. Entries with
// a msg field (optionally located by loc) render as "loc: msg"; anything
// else falls back to its map or scalar rendering.
func flattenEntry(c *gabs.Container) string {
	if m, ok := c.Data().(map[string]interface{}); ok {
		msg, hasMsg := m["msg"].(string)
		if !hasMsg {
			msg, hasMsg = m["message"].(string)
		}
		if hasMsg {
			if loc := flattenLoc(m["loc"]); loc != "" {
				return fmt.Sprintf("%s: %s", loc, msg)
			}
			return msg
		}
		return flattenMap(m)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", c.Data()))
}

func flattenLoc(loc interface{}) string {
	items, ok := loc.([]interface{})
	if !ok || len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return strings.Join(parts, ".")
}

func flattenMap(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return strings.Join(parts, "; ")
}
