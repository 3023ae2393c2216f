package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const (
	chartWidth     = 1200
	chartHeight    = 600
	histogramBins  = 30
	barWidth       = 28
	barSpacing     = 8
	minDailyPoints = 2
)

var shortDayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// RenderCharts writes the PNG charts for records into dir and returns the
// paths written. A chart that cannot be drawn (for example a daily series
// with a single day) is logged and skipped.
func RenderCharts(dir string, records []domain.Record, logger *slog.Logger) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart directory: %w", err)
	}

	type renderer struct {
		name   string
		render func(io.Writer, []domain.Record) error
	}
	renderers := []renderer{
		{"char_count_distribution.png", renderCharHistogram},
	}
	if hasTimestamps(records) {
		renderers = append([]renderer{
			{"posting_frequency.png", renderDailyFrequency},
			{"hourly_pattern.png", renderHourly},
			{"daily_pattern.png", renderWeekday},
		}, renderers...)
	}

	var written []string
	for _, r := range renderers {
		path := filepath.Join(dir, r.name)
		err := writeFile(path, func(w io.Writer) error { return r.render(w, records) })
		if err != nil {
			logger.Warn("skipping chart", "chart", r.name, "error", err)
			_ = os.Remove(path)
			continue
		}
		written = append(written, path)
	}
	return written, nil
}

func hasTimestamps(records []domain.Record) bool {
	for i := range records {
		if records[i].HasTimestamp() {
			return true
		}
	}
	return false
}

func renderDailyFrequency(w io.Writer, records []domain.Record) error {
	counts := make(map[string]int)
	var first, last time.Time
	for i := range records {
		if records[i].Date == nil {
			continue
		}
		day, err := time.Parse(time.DateOnly, *records[i].Date)
		if err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
		counts[*records[i].Date]++
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if len(counts) < minDailyPoints {
		return fmt.Errorf("need at least %d distinct days, have %d", minDailyPoints, len(counts))
	}

	var xs []time.Time
	var ys []float64
	peak := 0.0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		c := float64(counts[day.Format(time.DateOnly)])
		xs = append(xs, day)
		ys = append(ys, c)
		peak = max(peak, c)
	}

	graph := chart.Chart{
		Title:  "Daily Posting Frequency",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:  "Number of Posts",
			Range: &chart.ContinuousRange{Min: 0, Max: peak},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Posts", XValues: xs, YValues: ys},
		},
	}
	return graph.Render(chart.PNG, w)
}

func renderHourly(w io.Writer, records []domain.Record) error {
	var hours [24]int
	for i := range records {
		if h := records[i].Hour; h != nil && *h >= 0 && *h < len(hours) {
			hours[*h]++
		}
	}

	var bars []chart.Value
	for h, c := range hours {
		if c > 0 {
			bars = append(bars, chart.Value{Label: fmt.Sprintf("%d", h), Value: float64(c)})
		}
	}
	return renderBars(w, "Posts by Hour of Day", bars)
}

func renderWeekday(w io.Writer, records []domain.Record) error {
	var days [7]int
	for i := range records {
		if d := records[i].DayOfWeek; d != nil && *d >= 0 && *d < len(days) {
			days[*d]++
		}
	}

	var bars []chart.Value
	for d, c := range days {
		if c > 0 {
			bars = append(bars, chart.Value{Label: shortDayNames[d], Value: float64(c)})
		}
	}
	return renderBars(w, "Posts by Day of Week", bars)
}

func renderCharHistogram(w io.Writer, records []domain.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records")
	}

	lo, hi := records[0].CharCount, records[0].CharCount
	total := 0
	for i := range records {
		c := records[i].CharCount
		lo = min(lo, c)
		hi = max(hi, c)
		total += c
	}
	mean := float64(total) / float64(len(records))

	bins := histogram(records, lo, hi, histogramBins)
	width := float64(hi-lo) / float64(histogramBins)
	if width == 0 {
		width = 1
	}

	bars := make([]chart.Value, len(bins))
	for i, c := range bins {
		start := float64(lo) + float64(i)*width
		bars[i] = chart.Value{Label: fmt.Sprintf("%.0f", start), Value: float64(c)}
	}
	return renderBars(w, fmt.Sprintf("Distribution of Post Character Counts (mean %.1f)", mean), bars)
}

// histogram counts values into n equal-width bins spanning [lo, hi]. The
// last bin is closed on the right.
func histogram(records []domain.Record, lo, hi, n int) []int {
	bins := make([]int, n)
	span := float64(hi - lo)
	for i := range records {
		idx := 0
		if span > 0 {
			idx = int(float64(records[i].CharCount-lo) / span * float64(n))
		}
		if idx >= n {
			idx = n - 1
		}
		bins[idx]++
	}
	return bins
}

func renderBars(w io.Writer, title string, bars []chart.Value) error {
	if len(bars) == 0 {
		return fmt.Errorf("no data")
	}

	peak := 0.0
	for _, b := range bars {
		peak = max(peak, b.Value)
	}

	bc := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: max(peak, 1)},
		},
		Bars: bars,
	}
	return bc.Render(chart.PNG, w)
}
