package observability

import (
	"fmt"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Sample is one flattened counter, gauge or histogram-count value.
type Sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Summarize flattens gathered metric families into sorted samples of the
// form name{label="value",...}. Histograms contribute their _count.
func Summarize(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var samples []Sample
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			name := fam.GetName() + formatLabels(m.GetLabel())
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				samples = append(samples, Sample{Name: name, Value: m.GetCounter().GetValue()})
			case dto.MetricType_GAUGE:
				samples = append(samples, Sample{Name: name, Value: m.GetGauge().GetValue()})
			case dto.MetricType_HISTOGRAM:
				samples = append(samples, Sample{
					Name:  fam.GetName() + "_count" + formatLabels(m.GetLabel()),
					Value: float64(m.GetHistogram().GetSampleCount()),
				})
			}
		}
	}

	slices.SortFunc(samples, func(a, b Sample) int { return strings.Compare(a.Name, b.Name) })
	return samples, nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
