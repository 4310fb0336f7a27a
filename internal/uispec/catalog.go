package uispec

import "strings"

// Canonical renderer identities. Every accepted alias resolves to exactly
// one of these; the renderer bundle ships one component per identity.
const (
	TypeStatCard     = "stat_card"
	TypeLineChart    = "line_chart"
	TypeBarChart     = "bar_chart"
	TypePieChart     = "pie_chart"
	TypeAreaChart    = "area_chart"
	TypeDataTable    = "data_table"
	TypeActivityFeed = "activity_feed"
	TypeTextBlock    = "text_block"
	TypeFilterBar    = "filter_bar"
)

// componentAliases maps normalized type names (lowercased, separators
// stripped) to canonical identities. The alias set drifts with the
// generator's vocabulary; the rejection policy lives in the gate and does
// not change when entries are added here.
var componentAliases = map[string]string{
	"statcard":   TypeStatCard,
	"stat":       TypeStatCard,
	"kpi":        TypeStatCard,
	"kpicard":    TypeStatCard,
	"metric":     TypeStatCard,
	"metriccard": TypeStatCard,
	"scorecard":  TypeStatCard,

	"linechart":  TypeLineChart,
	"line":       TypeLineChart,
	"timeseries": TypeLineChart,
	"trendchart": TypeLineChart,

	"barchart":    TypeBarChart,
	"bar":         TypeBarChart,
	"columnchart": TypeBarChart,

	"piechart":   TypePieChart,
	"pie":        TypePieChart,
	"donutchart": TypePieChart,
	"donut":      TypePieChart,

	"areachart": TypeAreaChart,
	"area":      TypeAreaChart,

	"datatable":       TypeDataTable,
	"table":           TypeDataTable,
	"grid":            TypeDataTable,
	"datagrid":        TypeDataTable,
	"executionstable": TypeDataTable,

	"activityfeed": TypeActivityFeed,
	"feed":         TypeActivityFeed,
	"eventlist":    TypeActivityFeed,
	"activitylist": TypeActivityFeed,

	"textblock": TypeTextBlock,
	"text":      TypeTextBlock,
	"heading":   TypeTextBlock,
	"markdown":  TypeTextBlock,

	"filterbar":        TypeFilterBar,
	"filters":          TypeFilterBar,
	"dashboardfilters": TypeFilterBar,
}

// ResolveComponentType maps a possibly aliased or legacy type name to its
// canonical renderer identity. Matching is case-insensitive and tolerates
// kebab-case, snake_case, camelCase, and spaces. Returns ok=false for
// unrecognized names; the gate, not the resolver, decides the consequence.
func ResolveComponentType(name string) (string, bool) {
	canonical, ok := componentAliases[normalizeTypeName(name)]
	return canonical, ok
}

// normalizeTypeName lowercases and strips separator characters so that
// "line-chart", "LineChart", and "line_chart" all collide.
func normalizeTypeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case '-', '_', ' ', '.':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
