package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/model"
)

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorMuted      = "#9ca3af"
	colorPrice      = "#3b82f6"
	colorEquity     = "#fbbf24"
	colorBuy        = "#34d399"
	colorSell       = "#f87171"

	chartWidthPx  = 1400
	chartHeightPx = 420

	axisLayout = "01-02 15:04"
)

// RenderChart writes an HTML page with the close price (buy and sell fills
// marked) and the equity curve of res.
func RenderChart(w io.Writer, title string, series model.Series, res *backtest.Result) error {
	if series.Len() == 0 {
		return fmt.Errorf("chart %s: empty series", title)
	}

	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(priceChart(title, series, res.Trades), equityChart(res))
	return page.Render(w)
}

func initOpts() opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", chartHeightPx),
		BackgroundColor: colorBackground,
	}
}

func globalOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(initOpts()),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 16},
			SubtitleStyle: &opts.TextStyle{Color: colorMuted},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorMuted}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Color: colorMuted}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorMuted, Opacity: opts.Float(0.2)}},
		}),
	}
}

func priceChart(title string, series model.Series, trades []model.Trade) *charts.Line {
	n := series.Len()
	x := make([]string, n)
	closes := make([]opts.LineData, n)
	for i := 0; i < n; i++ {
		b := series.At(i)
		x[i] = b.TS.UTC().Format(axisLayout)
		closes[i] = opts.LineData{Value: round(b.Close, 6)}
	}

	buys := make([]opts.ScatterData, n)
	sells := make([]opts.ScatterData, n)
	for i := range buys {
		buys[i] = opts.ScatterData{Value: nil}
		sells[i] = opts.ScatterData{Value: nil}
	}
	for _, t := range trades {
		if t.Index < 0 || t.Index >= n {
			continue
		}
		d := opts.ScatterData{Value: round(t.Price, 6), Symbol: "triangle", SymbolSize: 12}
		if t.Kind == model.TradeBuy {
			buys[t.Index] = d
		} else {
			d.SymbolRotate = 180
			sells[t.Index] = d
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts(title, fmt.Sprintf("%d bars, %d fills", n, len(trades)))...)
	line.SetXAxis(x)
	line.AddSeries("Close", closes,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorPrice, Width: 1.5}),
	)

	marks := charts.NewScatter()
	marks.SetXAxis(x)
	marks.AddSeries("Buy", buys, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuy}))
	marks.AddSeries("Sell", sells, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSell}))
	line.Overlap(marks)
	return line
}

func equityChart(res *backtest.Result) *charts.Line {
	x := make([]string, len(res.Equity))
	data := make([]opts.LineData, len(res.Equity))
	for i, p := range res.Equity {
		x[i] = p.TS.UTC().Format(axisLayout)
		data[i] = opts.LineData{Value: round(p.Equity, 4)}
	}

	m := res.Metrics
	subtitle := fmt.Sprintf("return %.2f%% | max drawdown %.2f%% | sharpe %.2f | trades %d",
		m.TotalReturnPct, m.MaxDrawdownPct, m.SharpeRatio, m.TradeCount)

	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Equity", subtitle)...)
	line.SetXAxis(x)
	line.AddSeries("Equity", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.15)}),
	)
	return line
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
