package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"bessmon/internal/dashboard"
	"bessmon/internal/model"
)

//go:embed index.html
var FS embed.FS

const (
	chartWidth  = 900.0
	chartHeight = 260.0
	chartPad    = 24.0
	timeLayout  = "2006-01-02 15:04:05"
)

var palette = []string{"#1f77b4", "#d62728", "#2ca02c", "#ff7f0e", "#9467bd", "#8c564b"}

var tmpl = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	"ts":  func(t time.Time) string { return t.Local().Format(timeLayout) },
}).ParseFS(FS, "index.html"))

// Page is the data behind the dashboard page.
type Page struct {
	View      dashboard.View
	RefreshMS int64
	Live      bool
	Chart     Chart
}

type Chart struct {
	Width  float64
	Height float64
	Min    float64
	Max    float64
	Series []Series
}

// Series is one device's voltage line as SVG polyline points.
type Series struct {
	BessID string
	Color  string
	Points string
}

// Render writes the full page.
func Render(w io.Writer, p Page) error {
	p.Chart = buildChart(p.View.Readings)
	return tmpl.ExecuteTemplate(w, "index.html", p)
}

// RenderContent writes only the live-refreshed part of the page.
func RenderContent(w io.Writer, p Page) error {
	p.Chart = buildChart(p.View.Readings)
	return tmpl.ExecuteTemplate(w, "content", p)
}

// buildChart plots voltage against observation time. Readings arrive newest
// first and are drawn oldest to newest.
func buildChart(readings []model.Reading) Chart {
	c := Chart{Width: chartWidth, Height: chartHeight}
	if len(readings) == 0 {
		return c
	}
	first, last := readings[len(readings)-1].ObservedAt, readings[0].ObservedAt
	c.Min, c.Max = readings[0].Voltage, readings[0].Voltage
	for _, r := range readings {
		if r.Voltage < c.Min {
			c.Min = r.Voltage
		}
		if r.Voltage > c.Max {
			c.Max = r.Voltage
		}
		if r.ObservedAt.Before(first) {
			first = r.ObservedAt
		}
		if r.ObservedAt.After(last) {
			last = r.ObservedAt
		}
	}
	span := last.Sub(first).Seconds()
	vspan := c.Max - c.Min

	points := make(map[string][]string)
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		x := chartWidth / 2
		if span > 0 {
			x = chartPad + (chartWidth-2*chartPad)*r.ObservedAt.Sub(first).Seconds()/span
		}
		y := chartHeight / 2
		if vspan > 0 {
			y = chartHeight - chartPad - (chartHeight-2*chartPad)*(r.Voltage-c.Min)/vspan
		}
		points[r.BessID] = append(points[r.BessID], fmt.Sprintf("%.1f,%.1f", x, y))
	}
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		c.Series = append(c.Series, Series{
			BessID: id,
			Color:  palette[i%len(palette)],
			Points: strings.Join(points[id], " "),
		})
	}
	return c
}
