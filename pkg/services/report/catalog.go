package report

import (
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/genesis-labs/genesis-api/pkg/services/aggregation"
)

// SourceAbot is the data source key of the Abot command gateway.
const SourceAbot = "abot"

func SalesSummary() Definition {
	return Definition{
		Type:        "sales_summary",
		Title:       "Sales summary",
		Description: "Orders and revenue by category, day and region.",
		Filters: []Filter{
			{Name: "region", Type: domain.TypeString, Multi: true},
			{Name: "category", Type: domain.TypeString, Multi: true},
		},
		Queries: []Query{
			{Name: "sales", Entity: "sales", Ranged: true, Filters: []string{"region", "category"}},
		},
		Tables: []Table{
			{Query: "sales", Spec: aggregation.Spec{
				Name:    "by_category",
				Title:   "Sales by category",
				GroupBy: []string{"category"},
				Metrics: []aggregation.Metric{
					{Name: "orders", Op: aggregation.OpCount},
					{Name: "units", Column: "units", Op: aggregation.OpSum},
					{Name: "revenue", Column: "revenue", Op: aggregation.OpSum},
				},
				Derived: []aggregation.Derived{{Name: "avg_order_value", Expr: "revenue / orders"}},
			}},
			{Query: "sales", Spec: aggregation.Spec{
				Name:  "totals",
				Title: "Totals",
				Computed: []aggregation.Computed{
					{Name: "refund", Expr: "refunded ? 1 : 0"},
				},
				Metrics: []aggregation.Metric{
					{Name: "orders", Op: aggregation.OpCount},
					{Name: "units", Column: "units", Op: aggregation.OpSum},
					{Name: "revenue", Column: "revenue", Op: aggregation.OpSum},
					{Name: "refunds", Column: "refund", Op: aggregation.OpSum},
				},
				Derived: []aggregation.Derived{{Name: "avg_order_value", Expr: "revenue / orders"}},
			}},
			{Query: "sales", Spec: aggregation.Spec{
				Name:   "daily_revenue",
				Title:  "Daily revenue",
				Bucket: &aggregation.Bucket{Column: "sold_at", Granularity: aggregation.Day, As: "day"},
				Metrics: []aggregation.Metric{
					{Name: "orders", Op: aggregation.OpCount},
					{Name: "revenue", Column: "revenue", Op: aggregation.OpSum},
				},
			}},
			{Query: "sales", Spec: aggregation.Spec{
				Name:    "weekly_by_region",
				Title:   "Weekly revenue by region",
				Bucket:  &aggregation.Bucket{Column: "sold_at", Granularity: aggregation.Week, As: "week"},
				GroupBy: []string{"region"},
				Metrics: []aggregation.Metric{
					{Name: "orders", Op: aggregation.OpCount},
					{Name: "revenue", Column: "revenue", Op: aggregation.OpSum},
				},
			}},
		},
		Charts: []domain.ChartSpec{
			{
				ID:     "revenue_by_category",
				Kind:   domain.ChartBar,
				Title:  "Revenue by category",
				Table:  "by_category",
				X:      "category",
				Series: []domain.SeriesSpec{{Column: "revenue", Label: "Revenue"}},
				YLabel: "Revenue",
			},
			{
				ID:     "category_share",
				Kind:   domain.ChartPie,
				Title:  "Share of revenue",
				Table:  "by_category",
				X:      "category",
				Series: []domain.SeriesSpec{{Column: "revenue"}},
			},
			{
				ID:     "daily_revenue",
				Kind:   domain.ChartLine,
				Title:  "Revenue per day",
				Table:  "daily_revenue",
				X:      "day",
				Series: []domain.SeriesSpec{{Column: "revenue", Label: "Revenue"}},
				XLabel: "Day",
				YLabel: "Revenue",
			},
			{
				ID:      "weekly_by_region",
				Kind:    domain.ChartTable,
				Title:   "Weekly revenue by region",
				Table:   "weekly_by_region",
				Columns: []string{"week", "region", "orders", "revenue"},
			},
		},
		Sections: []domain.SectionLayout{
			{
				Title:     "Overview",
				Narrative: "Orders and revenue for the selected period, grouped by product category.",
				Tables:    []string{"by_category", "totals"},
			},
			{
				Title:     "Revenue by category",
				Narrative: "How revenue splits across product categories.",
				Charts:    []string{"revenue_by_category", "category_share"},
			},
			{
				Title:  "Daily revenue",
				Charts: []string{"daily_revenue"},
			},
			{
				Title:      "Regions",
				Narrative:  "Revenue per region for each week starting Monday.",
				Charts:     []string{"weekly_by_region"},
				Continuous: true,
			},
		},
	}
}

func SensorReport() Definition {
	readings := []aggregation.Metric{
		{Name: "readings", Op: aggregation.OpCount},
		{Name: "min", Column: "value", Op: aggregation.OpMin},
		{Name: "avg", Column: "value", Op: aggregation.OpAvg},
		{Name: "max", Column: "value", Op: aggregation.OpMax},
	}

	return Definition{
		Type:        "sensor_report",
		Title:       "Sensor report",
		Description: "Hourly and daily statistics for one sensor.",
		Filters: []Filter{
			{Name: "sensor_id", Type: domain.TypeNumber, Required: true},
		},
		Queries: []Query{
			{Name: "sensor", Entity: "sensor_catalog", Filters: []string{"sensor_id"}, Required: true},
			{Name: "readings", Entity: "sensor_readings", Ranged: true, Filters: []string{"sensor_id"}},
		},
		Tables: []Table{
			{Query: "sensor", Spec: aggregation.Spec{
				Name:    "sensor",
				Title:   "Sensor",
				GroupBy: []string{"sensor_name", "sensor_type", "location", "unit_symbol"},
				Metrics: []aggregation.Metric{{Name: "sensors", Op: aggregation.OpCount}},
			}},
			{Query: "readings", Spec: aggregation.Spec{
				Name:    "hourly",
				Title:   "Hourly readings",
				Bucket:  &aggregation.Bucket{Column: "recorded_at", Granularity: aggregation.Hour, As: "hour"},
				Metrics: readings,
			}},
			{Query: "readings", Spec: aggregation.Spec{
				Name:    "daily",
				Title:   "Daily readings",
				Bucket:  &aggregation.Bucket{Column: "recorded_at", Granularity: aggregation.Day, As: "day"},
				Metrics: readings,
			}},
		},
		Charts: []domain.ChartSpec{
			{
				ID:    "hourly_values",
				Kind:  domain.ChartLine,
				Title: "Hourly values",
				Table: "hourly",
				X:     "hour",
				Series: []domain.SeriesSpec{
					{Column: "min", Label: "Min"},
					{Column: "avg", Label: "Average"},
					{Column: "max", Label: "Max"},
				},
				XLabel: "Hour",
			},
			{
				ID:      "daily_values",
				Kind:    domain.ChartTable,
				Title:   "Daily statistics",
				Table:   "daily",
				Columns: []string{"day", "readings", "min", "avg", "max"},
			},
		},
		Sections: []domain.SectionLayout{
			{
				Title:  "Sensor",
				Tables: []string{"sensor"},
			},
			{
				Title:     "Readings",
				Narrative: "Minimum, average and maximum value per hour.",
				Charts:    []string{"hourly_values"},
			},
			{
				Title:      "Daily statistics",
				Charts:     []string{"daily_values"},
				Continuous: true,
			},
		},
	}
}

// AbotMetrics pivots daily averages of the requested metrics into one
// column per metric, so its table and chart shapes follow the metric filter.
func AbotMetrics() Definition {
	return Definition{
		Type:        "abot_metrics",
		Title:       "Abot metrics",
		Description: "Daily averages of Abot metric series.",
		Filters: []Filter{
			{Name: "metric", Type: domain.TypeString, Required: true, Multi: true},
		},
		Queries: []Query{
			{Name: "series", Source: SourceAbot, Entity: "metrics.series", Ranged: true, Filters: []string{"metric"}},
		},
		Tables: []Table{
			{Query: "series", Spec: aggregation.Spec{
				Name:    "daily",
				Title:   "Daily average",
				Bucket:  &aggregation.Bucket{Column: "recorded_at", Granularity: aggregation.Day, As: "day"},
				GroupBy: []string{"metric"},
				Metrics: []aggregation.Metric{{Name: "value", Column: "value", Op: aggregation.OpAvg}},
				Pivot:   &aggregation.Pivot{Column: "metric", Metric: "value"},
			}},
			{Query: "series", Spec: aggregation.Spec{
				Name:    "summary",
				Title:   "Summary",
				GroupBy: []string{"metric"},
				Metrics: []aggregation.Metric{
					{Name: "samples", Op: aggregation.OpCount},
					{Name: "min", Column: "value", Op: aggregation.OpMin},
					{Name: "avg", Column: "value", Op: aggregation.OpAvg},
					{Name: "max", Column: "value", Op: aggregation.OpMax},
				},
			}},
		},
		Charts: []domain.ChartSpec{
			{
				ID:     "daily_metrics",
				Kind:   domain.ChartLine,
				Title:  "Daily average",
				Table:  "daily",
				X:      "day",
				XLabel: "Day",
			},
		},
		Sections: []domain.SectionLayout{
			{
				Title:  "Summary",
				Tables: []string{"summary"},
			},
			{
				Title:  "Trend",
				Charts: []string{"daily_metrics"},
			},
		},
		Expand: func(req domain.ReportRequest, p *Plan) error {
			metrics := distinct(req.Filter("metric"))
			for i := range p.Tables {
				if pv := p.Tables[i].Spec.Pivot; pv != nil && pv.Column == "metric" {
					pv.Values = metrics
				}
			}
			for i := range p.Charts {
				if p.Charts[i].ID != "daily_metrics" {
					continue
				}
				p.Charts[i].Series = nil
				for _, m := range metrics {
					p.Charts[i].Series = append(p.Charts[i].Series, domain.SeriesSpec{Column: m})
				}
			}
			return nil
		},
	}
}

func distinct(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
