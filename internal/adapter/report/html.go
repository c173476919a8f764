package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/arturoeanton/repolens/internal/domain"
	"github.com/arturoeanton/repolens/internal/port"
)

const (
	chartWidth    = "100%"
	chartHeight   = "420px"
	pieRadius     = "60%"
	topExtensionN = 12
)

var heatmapColors = []string{"#ebedf0", "#9be9a8", "#40c463", "#30a14e", "#216e39"}

// HTMLRenderer exports a standalone page of interactive charts.
type HTMLRenderer struct{}

var _ port.ReportRenderer = HTMLRenderer{}

func (HTMLRenderer) Format() string      { return "html" }
func (HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }
func (HTMLRenderer) Extension() string   { return ".html" }

func (HTMLRenderer) Render(w io.Writer, a *domain.Artifact) error {
	page := components.NewPage()
	page.PageTitle = "Repository Analysis: " + a.Summary.Name
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildRepositoryChart(a.Repositories),
		buildTimelineChart(a.Timeline),
		buildHeatmapChart(a.Heatmap),
		buildAuthorsChart(a.Authors),
		buildExtensionsChart(a.Summary.FileExtensions),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func initOpts() charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight})
}

func buildRepositoryChart(repos []domain.RepositoryAnalysis) *charts.Bar {
	names := make([]string, len(repos))
	commits := make([]opts.BarData, len(repos))
	lines := make([]opts.BarData, len(repos))
	for i, r := range repos {
		names[i] = r.Summary.Name
		commits[i] = opts.BarData{Value: r.Summary.NumCommits}
		lines[i] = opts.BarData{Value: r.Summary.TotalLines}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "Repositories", Subtitle: "Commits and lines of code"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(names).
		AddSeries("Commits", commits).
		AddSeries("Lines", lines)
	return bar
}

func buildTimelineChart(days []domain.DailyCount) *charts.Line {
	dates := make([]string, len(days))
	data := make([]opts.LineData, len(days))
	for i, d := range days {
		dates[i] = d.Date
		data[i] = opts.LineData{Value: d.Commits}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "Commit Timeline", Subtitle: "Commits per day"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(dates).
		AddSeries("Commits", data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func buildHeatmapChart(h domain.Heatmap) *charts.HeatMap {
	hours := make([]string, 24)
	for i := range hours {
		hours[i] = fmt.Sprintf("%02d", i)
	}

	maxVal := 0
	data := make([]opts.HeatMapData, 0, 7*24)
	for day, row := range h {
		for hour, n := range row {
			maxVal = max(maxVal, n)
			data = append(data, opts.HeatMapData{Value: []any{hour, day, n}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "Commit Activity", Subtitle: "Weekday by hour, committer local time"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "category", Data: hours,
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "category", Data: domain.Weekdays[:],
			SplitArea: &opts.SplitArea{Show: opts.Bool(true)},
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true), Min: 0, Max: float32(max(maxVal, 1)),
			InRange: &opts.VisualMapInRange{Color: heatmapColors},
			Orient:  "horizontal", Left: "center", Bottom: "2%",
		}),
	)
	hm.AddSeries("Commits", data)
	return hm
}

func buildAuthorsChart(authors []domain.AuthorStat) *charts.Bar {
	n := min(len(authors), topAuthors)
	names := make([]string, n)
	data := make([]opts.BarData, n)
	for i := range n {
		names[i] = authors[i].Name
		data[i] = opts.BarData{Value: authors[i].Commits}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "Top Contributors"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	bar.SetXAxis(names).AddSeries("Commits", data)
	return bar
}

func buildExtensionsChart(exts map[string]int) *charts.Pie {
	keys := make([]string, 0, len(exts))
	for k := range exts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if exts[keys[i]] != exts[keys[j]] {
			return exts[keys[i]] > exts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	data := make([]opts.PieData, 0, min(len(keys), topExtensionN+1))
	other := 0
	for i, k := range keys {
		if i >= topExtensionN {
			other += exts[k]
			continue
		}
		data = append(data, opts.PieData{Name: k, Value: exts[k]})
	}
	if other > 0 {
		data = append(data, opts.PieData{Name: "other", Value: other})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "File Extensions"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("Files", data).
		SetSeriesOptions(
			charts.WithPieChartOpts(opts.PieChart{Radius: pieRadius}),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}),
		)
	return pie
}
