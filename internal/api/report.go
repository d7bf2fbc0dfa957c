package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleWindowChart renders the live sample window as an HTML line chart.
// This is a debugging-only endpoint (no auth) to eyeball raw vs conditioned
// data without a frontend.
func (s *Server) handleWindowChart(w http.ResponseWriter, r *http.Request) {
	raw, filtered := s.controller.Window()
	if len(raw) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no samples buffered")
		return
	}

	x := make([]string, len(raw))
	rawWeight := make([]opts.LineData, len(raw))
	condWeight := make([]opts.LineData, len(filtered))
	for i, dp := range raw {
		x[i] = fmt.Sprintf("%.2f", dp.Timestamp)
		rawWeight[i] = opts.LineData{Value: dp.Weight}
		condWeight[i] = opts.LineData{Value: filtered[i].Weight}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Load Cell Telemetry", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Weight", Subtitle: fmt.Sprintf("points=%d filter=%s enabled=%v", len(raw), s.controller.ActiveFilter(), s.controller.FilterEnabled())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "weight"}),
	)
	line.SetXAxis(x).
		AddSeries("raw", rawWeight).
		AddSeries("conditioned", condWeight,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
