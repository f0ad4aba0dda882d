package chart

import (
	"github.com/genesis-labs/genesis-api/pkg/models/domain"
)

// BuildFigure returns the interactive form of spec over table. It uses the
// same validation, labels and colours as the raster renderer.
func BuildFigure(spec domain.ChartSpec, table *domain.AggregatedTable) (*domain.Figure, error) {
	if err := Validate(spec, table); err != nil {
		return nil, err
	}

	fig := &domain.Figure{
		ID:         spec.ID,
		ChartType:  spec.Kind,
		Title:      spec.Title,
		XAxis:      spec.XLabel,
		YAxis:      spec.YLabel,
		Series:     []domain.FigureSeries{},
		ShowLegend: len(spec.Series) > 1 || spec.Kind == domain.ChartPie,
		ShowGrid:   spec.Kind == domain.ChartLine || spec.Kind == domain.ChartBar,
	}

	if spec.Kind == domain.ChartTable {
		cols := TableColumns(spec, table)
		for _, c := range cols {
			fig.Columns = append(fig.Columns, c.Name)
		}
		fig.Rows = make([][]string, table.Len())
		for i := range fig.Rows {
			row := make([]string, len(cols))
			for j, c := range cols {
				row[j] = domain.FormatValue(table.Data.Value(i, c.Name))
			}
			fig.Rows[i] = row
		}
		return fig, nil
	}

	xs := labels(spec, table)
	for i, s := range spec.Series {
		c := SeriesColor(spec, i)
		series := domain.FigureSeries{Name: s.Name(), Color: c, Data: make([]domain.FigurePoint, len(xs))}
		for row, label := range xs {
			point := domain.FigurePoint{Label: label}
			if v, ok := number(table.Data.Value(row, s.Column)); ok {
				point.Value = &v
			}
			series.Data[row] = point
		}
		fig.Series = append(fig.Series, series)
		fig.Colors = append(fig.Colors, c)
	}
	if spec.Kind == domain.ChartPie {
		fig.Colors = fig.Colors[:0]
		for i := range xs {
			fig.Colors = append(fig.Colors, Palette[i%len(Palette)])
		}
	}
	return fig, nil
}
