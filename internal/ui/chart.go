// Package ui holds the TUI styles and the terminal line chart.
package ui

import (
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/sensorwatch/internal/sensor"
)

const (
	pointRune = '●'
	lineRune  = '·'
)

// Plot draws readings as a plain-text line chart with a plot area of width
// columns and height rows, followed by an x axis and the first and last
// display times. The first line is the title. With more readings than
// columns, readings are sampled evenly and the newest is always kept.
func Plot(title string, readings []sensor.Reading, width, height int) []string {
	lines := []string{title}
	if len(readings) == 0 {
		return append(lines, "  (no data)")
	}
	width = max(width, 2)
	height = max(height, 2)

	pts := sample(readings, width)
	lo, hi := pts[0].Value, pts[0].Value
	for _, p := range pts {
		lo = math.Min(lo, p.Value)
		hi = math.Max(hi, p.Value)
	}
	rowOf := func(v float64) float64 {
		if hi == lo {
			return float64((height - 1) / 2)
		}
		return (v - lo) / (hi - lo) * float64(height-1)
	}
	colOf := func(i int) int {
		if len(pts) == 1 {
			return 0
		}
		return i * (width - 1) / (len(pts) - 1)
	}

	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	set := func(row, col int, ch rune) {
		g := grid[height-1-row]
		if g[col] == ' ' || ch == pointRune {
			g[col] = ch
		}
	}
	for i, p := range pts {
		x, y := colOf(i), rowOf(p.Value)
		set(int(math.Round(y)), x, pointRune)
		if i == len(pts)-1 {
			break
		}
		nx, ny := colOf(i+1), rowOf(pts[i+1].Value)
		for c := x + 1; c < nx; c++ {
			t := float64(c-x) / float64(nx-x)
			set(int(math.Round(y+(ny-y)*t)), c, lineRune)
		}
	}

	top, bottom := formatValue(hi), formatValue(lo)
	pad := max(len(top), len(bottom))
	for r, row := range grid {
		label, tick := strings.Repeat(" ", pad), "│"
		switch r {
		case 0:
			label, tick = leftPad(top, pad), "┤"
		case height - 1:
			label, tick = leftPad(bottom, pad), "┤"
		}
		lines = append(lines, strings.TrimRight(label+tick+string(row), " "))
	}
	lines = append(lines, strings.Repeat(" ", pad)+"└"+strings.Repeat("─", width))

	first, last := pts[0].DisplayTime, pts[len(pts)-1].DisplayTime
	xlabels := first
	if len(pts) > 1 && len(first)+1+len(last) <= width {
		xlabels = first + strings.Repeat(" ", width-len(first)-len(last)) + last
	}
	lines = append(lines, strings.Repeat(" ", pad+1)+xlabels)
	return lines
}

// RenderChart renders Plot with the chart title and series styled.
func RenderChart(title string, readings []sensor.Reading, width, height int, series lipgloss.Style) string {
	lines := Plot(title, readings, width, height)
	lines[0] = PanelTitleStyle.Render(lines[0])
	for i := 1; i < len(lines); i++ {
		lines[i] = styleLine(lines[i], series)
	}
	return strings.Join(lines, "\n")
}

// styleLine colors plot marks with series and everything else as axis.
func styleLine(line string, series lipgloss.Style) string {
	var b, run strings.Builder
	inPlot := false
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if inPlot {
			b.WriteString(series.Render(run.String()))
		} else {
			b.WriteString(AxisStyle.Render(run.String()))
		}
		run.Reset()
	}
	for _, r := range line {
		plot := r == pointRune || r == lineRune
		if plot != inPlot {
			flush()
			inPlot = plot
		}
		run.WriteRune(r)
	}
	flush()
	return b.String()
}

// sample picks at most n readings spread evenly, keeping first and last.
func sample(readings []sensor.Reading, n int) []sensor.Reading {
	if len(readings) <= n {
		return readings
	}
	out := make([]sensor.Reading, n)
	for i := range out {
		out[i] = readings[i*(len(readings)-1)/(n-1)]
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
