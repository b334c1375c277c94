package report

import (
	"bytes"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/acepenergy/acep/pkg/projection"
)

// RenderProjectionChart renders an HTML page with the projected storage
// level and the daily energy balance.
func RenderProjectionChart(results []projection.DailyResult) ([]byte, error) {
	var xAxis []string
	for _, r := range results {
		xAxis = append(xAxis, r.Date.String())
	}

	storageChart := charts.NewLine()
	storageChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Storage (kWh)",
		}))
	var before, after []opts.LineData
	for _, r := range results {
		before = append(before, opts.LineData{Value: r.StorageBefore})
		after = append(after, opts.LineData{Value: r.StorageAfter})
	}
	storageChart.SetXAxis(xAxis).
		AddSeries("Start of day", before).
		AddSeries("End of day", after)

	balanceChart := charts.NewBar()
	balanceChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Daily Energy (kWh)",
		}))
	var consumption, generation []opts.BarData
	for _, r := range results {
		consumption = append(consumption, opts.BarData{Value: r.TotalConsumption})
		generation = append(generation, opts.BarData{Value: r.TotalGeneration})
	}
	balanceChart.SetXAxis(xAxis).
		AddSeries("Consumption", consumption).
		AddSeries("Generation", generation)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(storageChart, balanceChart)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
