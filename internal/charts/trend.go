// Package charts builds Plotly figure JSON for vitals trends. Rendering is
// left to the client.
package charts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	grob "github.com/MetalBlueberry/go-plotly/graph_objects"

	"github.com/medprompt/backend/internal/storage/models"
)

var (
	ErrLengthMismatch = errors.New("values and timestamps differ in length")
	ErrNoPoints       = errors.New("no data points")
	ErrUnknownMetric  = errors.New("unknown chart metric")
)

type Spec struct {
	Metric     string
	SeriesName string
	Title      string
	XAxisTitle string
	YAxisTitle string
	Color      string
}

var specs = map[string]Spec{
	"glucose": {
		Metric:     "glucose",
		SeriesName: "Glucose Level",
		Title:      "Glucose Trend Over Time",
		XAxisTitle: "Time",
		YAxisTitle: "Glucose (mg/dL)",
		Color:      "blue",
	},
	"bmi": {
		Metric:     "bmi",
		SeriesName: "BMI",
		Title:      "BMI Trend Over Time",
		XAxisTitle: "Date",
		YAxisTitle: "BMI (kg/m²)",
		Color:      "green",
	},
}

func SpecFor(metric string) (Spec, error) {
	s, ok := specs[metric]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	return s, nil
}

// Figure wraps a Plotly figure so handlers can encode it without importing
// the graph objects package.
type Figure struct {
	*grob.Fig
}

func Trend(spec Spec, values []float64, timestamps []string) (*Figure, error) {
	if len(values) != len(timestamps) {
		return nil, fmt.Errorf("%w: %d values, %d timestamps", ErrLengthMismatch, len(values), len(timestamps))
	}
	if len(values) == 0 {
		return nil, ErrNoPoints
	}

	trace := &grob.Scatter{
		Type: grob.TraceTypeScatter,
		X:    append([]string(nil), timestamps...),
		Y:    append([]float64(nil), values...),
		Mode: grob.ScatterMode("lines+markers"),
		Name: grob.String(spec.SeriesName),
		Line: &grob.ScatterLine{Color: grob.Color(spec.Color)},
	}

	return &Figure{Fig: &grob.Fig{
		Data: grob.Traces{trace},
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{Text: grob.String(spec.Title)},
			Xaxis: &grob.LayoutXaxis{Title: &grob.LayoutXaxisTitle{Text: grob.String(spec.XAxisTitle)}},
			Yaxis: &grob.LayoutYaxis{Title: &grob.LayoutYaxisTitle{Text: grob.String(spec.YAxisTitle)}},
		},
	}}, nil
}

func FromPoints(spec Spec, points []models.TrendPoint) (*Figure, error) {
	values := make([]float64, len(points))
	stamps := make([]string, len(points))
	for i, p := range points {
		values[i] = p.Value
		stamps[i] = p.Timestamp.Format(time.DateOnly)
	}
	return Trend(spec, values, stamps)
}

// JSON encodes the figure as a string, the form the web client parses.
func (f *Figure) JSON() (string, error) {
	b, err := json.Marshal(f.Fig)
	if err != nil {
		return "", fmt.Errorf("failed to encode figure: %w", err)
	}
	return string(b), nil
}
