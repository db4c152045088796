package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// eventsChart renders an hourly event-count bar chart (HTML) using
// go-echarts.
func (s *Server) eventsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid 'days' parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	counts, err := s.db.EventCountsByHour(since)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to query event counts: %v", err), http.StatusInternalServerError)
		return
	}

	hours := make([]string, 0, len(counts))
	values := make([]opts.BarData, 0, len(counts))
	for _, hc := range counts {
		hours = append(hours, hc.Hour.Format("Jan 2 15:04"))
		values = append(values, opts.BarData{Value: hc.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Chamber Events", Theme: "dark", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Detected Events Per Hour",
			Subtitle: fmt.Sprintf("last %d day(s), %d bucket(s)", days, len(counts)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(hours)
	bar.AddSeries("events", values,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// scoresPlot renders the recent score window as a PNG line plot with the
// current trigger threshold overlaid, for eyeballing threshold placement.
func (s *Server) scoresPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scores := s.engine.Stats().RecentScores()
	if len(scores) == 0 {
		http.Error(w, "no frames processed yet", http.StatusNotFound)
		return
	}

	p := plot.New()
	p.Title.Text = "Frame Scores"
	p.X.Label.Text = "frame (oldest first)"
	p.Y.Label.Text = "score"

	pts := make(plotter.XYs, len(scores))
	for i, v := range scores {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to build plot: %v", err), http.StatusInternalServerError)
		return
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("score", line)

	threshold := s.engine.Settings().TriggerThreshold
	thPts := plotter.XYs{
		{X: 0, Y: threshold},
		{X: float64(len(scores) - 1), Y: threshold},
	}
	thLine, err := plotter.NewLine(thPts)
	if err == nil {
		thLine.Width = vg.Points(1)
		thLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(thLine)
		p.Legend.Add("threshold", thLine)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	wt.WriteTo(w)
}
