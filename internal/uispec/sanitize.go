package uispec

// propKind describes the shape a sanitized prop value must have.
type propKind int

const (
	kindString propKind = iota
	kindNumber
	kindBool
	kindStringList
	kindObject
)

// commonProps are accepted on every component type.
var commonProps = map[string]propKind{
	"title":       kindString,
	"description": kindString,
	"span":        kindNumber,
	"hidden":      kindBool,
}

// allowedProps is the per-canonical-type allow-list. Anything not listed
// here (or in commonProps) is stripped before render: the generator
// occasionally invents plausible-sounding extras, and passing them through
// risks runtime type errors in the renderer.
var allowedProps = map[string]map[string]propKind{
	TypeStatCard: {
		"metric":     kindString,
		"format":     kindString,
		"comparison": kindString,
		"icon":       kindString,
	},
	TypeLineChart: {
		"metric":      kindString,
		"series":      kindStringList,
		"granularity": kindString,
		"smooth":      kindBool,
	},
	TypeBarChart: {
		"metric":   kindString,
		"group_by": kindString,
		"stacked":  kindBool,
		"limit":    kindNumber,
	},
	TypePieChart: {
		"metric":   kindString,
		"group_by": kindString,
		"donut":    kindBool,
	},
	TypeAreaChart: {
		"metric":      kindString,
		"series":      kindStringList,
		"granularity": kindString,
	},
	TypeDataTable: {
		"columns":   kindStringList,
		"source":    kindString,
		"page_size": kindNumber,
		"sortable":  kindBool,
	},
	TypeActivityFeed: {
		"source": kindString,
		"limit":  kindNumber,
	},
	TypeTextBlock: {
		"content": kindString,
		"variant": kindString,
	},
	TypeFilterBar: {
		"fields":   kindStringList,
		"defaults": kindObject,
	},
}

// SanitizeProps retains only allow-listed keys with expected shapes for the
// given canonical type and drops everything else silently. It is a filter,
// not a validator: it never fails on extra data, only excludes it.
func SanitizeProps(canonicalType string, raw map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(raw))
	typed := allowedProps[canonicalType]

	for key, value := range raw {
		kind, ok := typed[key]
		if !ok {
			kind, ok = commonProps[key]
		}
		if !ok {
			continue
		}
		if matchesKind(value, kind) {
			clean[key] = value
		}
	}

	return clean
}

func matchesKind(value interface{}, kind propKind) bool {
	switch kind {
	case kindString:
		_, ok := value.(string)
		return ok
	case kindNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case kindBool:
		_, ok := value.(bool)
		return ok
	case kindStringList:
		list, ok := value.([]interface{})
		if !ok {
			if _, ok := value.([]string); ok {
				return true
			}
			return false
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	case kindObject:
		_, ok := value.(map[string]interface{})
		return ok
	}
	return false
}
